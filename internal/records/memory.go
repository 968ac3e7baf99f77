package records

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used by handler tests. It mirrors the
// postgres semantics, including the all-or-nothing composition.
type MemoryStore struct {
	mu sync.Mutex

	vehicles    map[int64]Vehicle
	individuals map[int64]Individual
	companies   map[int64]Company
	infractions map[int64]Infraction
	accidents   map[int64]Accident
	bulletins   map[int64]SearchBulletin
	permits     map[int64]TemporaryPermit
	nextID      int64

	// FailInfractionInsert forces the dependent step of the composition to
	// fail, letting tests assert that no parent row survives.
	FailInfractionInsert error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles:    make(map[int64]Vehicle),
		individuals: make(map[int64]Individual),
		companies:   make(map[int64]Company),
		infractions: make(map[int64]Infraction),
		accidents:   make(map[int64]Accident),
		bulletins:   make(map[int64]SearchBulletin),
		permits:     make(map[int64]TemporaryPermit),
		nextID:      1,
	}
}

func (s *MemoryStore) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemoryStore) CreateVehicle(ctx context.Context, v *Vehicle) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.id()
	v.CreatedAt = time.Now()
	s.vehicles[v.ID] = *v
	return v.ID, nil
}

func (s *MemoryStore) GetVehicle(ctx context.Context, id int64) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	return out, nil
}

func (s *MemoryStore) UpdateVehicle(ctx context.Context, v *Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; !ok {
		return ErrNotFound
	}
	s.vehicles[v.ID] = *v
	return nil
}

func (s *MemoryStore) CreateIndividual(ctx context.Context, in *Individual) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = s.id()
	in.CreatedAt = time.Now()
	s.individuals[in.ID] = *in
	return in.ID, nil
}

func (s *MemoryStore) GetIndividual(ctx context.Context, id int64) (*Individual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.individuals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &in, nil
}

func (s *MemoryStore) ListIndividuals(ctx context.Context) ([]Individual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Individual, 0, len(s.individuals))
	for _, in := range s.individuals {
		out = append(out, in)
	}
	return out, nil
}

func (s *MemoryStore) UpdateIndividual(ctx context.Context, in *Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[in.ID]; !ok {
		return ErrNotFound
	}
	s.individuals[in.ID] = *in
	return nil
}

func (s *MemoryStore) CreateCompany(ctx context.Context, c *Company) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.CreatedAt = time.Now()
	s.companies[c.ID] = *c
	return c.ID, nil
}

func (s *MemoryStore) GetCompany(ctx context.Context, id int64) (*Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCompanies(ctx context.Context) ([]Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) UpdateCompany(ctx context.Context, c *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return ErrNotFound
	}
	s.companies[c.ID] = *c
	return nil
}

func (s *MemoryStore) CreateInfraction(ctx context.Context, inf *Infraction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInfractionInsert != nil {
		return 0, s.FailInfractionInsert
	}
	inf.ID = s.id()
	inf.CreatedAt = time.Now()
	s.infractions[inf.ID] = *inf
	return inf.ID, nil
}

func (s *MemoryStore) GetInfraction(ctx context.Context, id int64) (*Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.infractions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inf, nil
}

func (s *MemoryStore) ListInfractions(ctx context.Context) ([]Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Infraction, 0, len(s.infractions))
	for _, inf := range s.infractions {
		out = append(out, inf)
	}
	return out, nil
}

func (s *MemoryStore) MarkInfractionPaid(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inf, ok := s.infractions[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	inf.Paid = true
	inf.PaidAt = &now
	s.infractions[id] = inf
	return nil
}

func (s *MemoryStore) CreateAccident(ctx context.Context, a *Accident) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	a.CreatedAt = time.Now()
	s.accidents[a.ID] = *a
	return a.ID, nil
}

func (s *MemoryStore) GetAccident(ctx context.Context, id int64) (*Accident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListAccidents(ctx context.Context) ([]Accident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Accident, 0, len(s.accidents))
	for _, a := range s.accidents {
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStore) CreateBulletin(ctx context.Context, b *SearchBulletin) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	b.Active = true
	b.CreatedAt = time.Now()
	s.bulletins[b.ID] = *b
	return b.ID, nil
}

func (s *MemoryStore) ListBulletins(ctx context.Context) ([]SearchBulletin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchBulletin, 0, len(s.bulletins))
	for _, b := range s.bulletins {
		out = append(out, b)
	}
	return out, nil
}

func (s *MemoryStore) CloseBulletin(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bulletins[id]
	if !ok {
		return ErrNotFound
	}
	b.Active = false
	s.bulletins[id] = b
	return nil
}

func (s *MemoryStore) CreatePermit(ctx context.Context, p *TemporaryPermit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now()
	s.permits[p.ID] = *p
	return p.ID, nil
}

func (s *MemoryStore) ListPermits(ctx context.Context) ([]TemporaryPermit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TemporaryPermit, 0, len(s.permits))
	for _, p := range s.permits {
		out = append(out, p)
	}
	return out, nil
}

// CreateCompanyWithInfraction mirrors the composer's all-or-nothing contract:
// a failed dependent insert removes the parent and runs the cleanups.
func (s *MemoryStore) CreateCompanyWithInfraction(ctx context.Context, c *Company, inf *Infraction, cleanups []func()) (int64, int64, error) {
	companyID, err := s.CreateCompany(ctx, c)
	if err != nil {
		return 0, 0, err
	}

	inf.DossierType = DossierCompany
	inf.DossierID = companyID
	infractionID, err := s.CreateInfraction(ctx, inf)
	if err != nil {
		s.mu.Lock()
		delete(s.companies, companyID)
		s.mu.Unlock()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return 0, 0, err
	}
	return companyID, infractionID, nil
}

// CompanyCount reports stored companies; test helper.
func (s *MemoryStore) CompanyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.companies)
}

// InfractionCount reports stored infractions; test helper.
func (s *MemoryStore) InfractionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.infractions)
}
