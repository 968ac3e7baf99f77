package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"routier/internal/compose"
	"routier/internal/platform/database"
	"routier/pkg/apperr"
)

// Store is the persistence seam the handlers depend on. The postgres
// implementation is the real one; the memory implementation backs handler
// tests.
type Store interface {
	CreateVehicle(ctx context.Context, v *Vehicle) (int64, error)
	GetVehicle(ctx context.Context, id int64) (*Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	UpdateVehicle(ctx context.Context, v *Vehicle) error

	CreateIndividual(ctx context.Context, in *Individual) (int64, error)
	GetIndividual(ctx context.Context, id int64) (*Individual, error)
	ListIndividuals(ctx context.Context) ([]Individual, error)
	UpdateIndividual(ctx context.Context, in *Individual) error

	CreateCompany(ctx context.Context, c *Company) (int64, error)
	GetCompany(ctx context.Context, id int64) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	UpdateCompany(ctx context.Context, c *Company) error

	CreateInfraction(ctx context.Context, inf *Infraction) (int64, error)
	GetInfraction(ctx context.Context, id int64) (*Infraction, error)
	ListInfractions(ctx context.Context) ([]Infraction, error)
	MarkInfractionPaid(ctx context.Context, id int64) error

	CreateAccident(ctx context.Context, a *Accident) (int64, error)
	GetAccident(ctx context.Context, id int64) (*Accident, error)
	ListAccidents(ctx context.Context) ([]Accident, error)

	CreateBulletin(ctx context.Context, b *SearchBulletin) (int64, error)
	ListBulletins(ctx context.Context) ([]SearchBulletin, error)
	CloseBulletin(ctx context.Context, id int64) error

	CreatePermit(ctx context.Context, p *TemporaryPermit) (int64, error)
	ListPermits(ctx context.Context) ([]TemporaryPermit, error)

	// CreateCompanyWithInfraction atomically inserts a company and its first
	// infraction referencing it. cleanups run only if the composition rolls
	// back, to undo side effects (stored photos) that live outside the
	// database boundary.
	CreateCompanyWithInfraction(ctx context.Context, c *Company, inf *Infraction, cleanups []func()) (companyID, infractionID int64, err error)
}

// ErrNotFound marks an absent referenced entity.
var ErrNotFound = apperr.New(apperr.CodeNotFound, "record not found")

// PostgresStore persists records through the self-healing handle; multi-table
// writes run through the composer.
type PostgresStore struct {
	handle   *database.Handle
	composer *compose.Composer
}

func NewPostgresStore(handle *database.Handle, composer *compose.Composer) *PostgresStore {
	return &PostgresStore{handle: handle, composer: composer}
}

// -----------------------------------------------------------------------------
// Vehicles
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateVehicle(ctx context.Context, v *Vehicle) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO vehicles (plate, brand, model, color, owner_type, owner_id, photos)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		v.Plate, v.Brand, v.Model, v.Color, v.OwnerType, v.OwnerID, pq.Array(v.Photos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert vehicle: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetVehicle(ctx context.Context, id int64) (*Vehicle, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	var v Vehicle
	err = db.QueryRowContext(ctx, `
		SELECT id, plate, brand, model, color, owner_type, owner_id, photos, created_at
		FROM vehicles WHERE id = $1`, id,
	).Scan(&v.ID, &v.Plate, &v.Brand, &v.Model, &v.Color, &v.OwnerType, &v.OwnerID, pq.Array(&v.Photos), &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vehicle: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, plate, brand, model, color, owner_type, owner_id, photos, created_at
		FROM vehicles ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Plate, &v.Brand, &v.Model, &v.Color, &v.OwnerType, &v.OwnerID, pq.Array(&v.Photos), &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateVehicle(ctx context.Context, v *Vehicle) error {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE vehicles SET plate = $2, brand = $3, model = $4, color = $5,
			owner_type = $6, owner_id = $7, photos = $8
		WHERE id = $1`,
		v.ID, v.Plate, v.Brand, v.Model, v.Color, v.OwnerType, v.OwnerID, pq.Array(v.Photos),
	)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	return requireRow(res)
}

// -----------------------------------------------------------------------------
// Individuals
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateIndividual(ctx context.Context, in *Individual) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO individuals (first_name, last_name, national_id, phone, address, photos)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.FirstName, in.LastName, in.NationalID, in.Phone, in.Address, pq.Array(in.Photos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert individual: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIndividual(ctx context.Context, id int64) (*Individual, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	var in Individual
	err = db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, national_id, phone, address, photos, created_at
		FROM individuals WHERE id = $1`, id,
	).Scan(&in.ID, &in.FirstName, &in.LastName, &in.NationalID, &in.Phone, &in.Address, pq.Array(&in.Photos), &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load individual: %w", err)
	}
	return &in, nil
}

func (s *PostgresStore) ListIndividuals(ctx context.Context) ([]Individual, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, first_name, last_name, national_id, phone, address, photos, created_at
		FROM individuals ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list individuals: %w", err)
	}
	defer rows.Close()

	var out []Individual
	for rows.Next() {
		var in Individual
		if err := rows.Scan(&in.ID, &in.FirstName, &in.LastName, &in.NationalID, &in.Phone, &in.Address, pq.Array(&in.Photos), &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan individual: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateIndividual(ctx context.Context, in *Individual) error {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE individuals SET first_name = $2, last_name = $3, national_id = $4,
			phone = $5, address = $6, photos = $7
		WHERE id = $1`,
		in.ID, in.FirstName, in.LastName, in.NationalID, in.Phone, in.Address, pq.Array(in.Photos),
	)
	if err != nil {
		return fmt.Errorf("update individual: %w", err)
	}
	return requireRow(res)
}

// -----------------------------------------------------------------------------
// Companies
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, insertCompanySQL,
		c.Name, c.RegistrationNo, c.Phone, c.Address, pq.Array(c.Photos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert company: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*Company, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	var c Company
	err = db.QueryRowContext(ctx, `
		SELECT id, name, registration_no, phone, address, photos, created_at
		FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.RegistrationNo, &c.Phone, &c.Address, pq.Array(&c.Photos), &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, registration_no, phone, address, photos, created_at
		FROM companies ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.RegistrationNo, &c.Phone, &c.Address, pq.Array(&c.Photos), &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *Company) error {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE companies SET name = $2, registration_no = $3, phone = $4,
			address = $5, photos = $6
		WHERE id = $1`,
		c.ID, c.Name, c.RegistrationNo, c.Phone, c.Address, pq.Array(c.Photos),
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	return requireRow(res)
}

// -----------------------------------------------------------------------------
// Infractions
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateInfraction(ctx context.Context, inf *Infraction) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, insertInfractionSQL,
		inf.DossierType, inf.DossierID, inf.Code, inf.Description, inf.Location,
		inf.FineAmount, pq.Array(inf.Photos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert infraction: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetInfraction(ctx context.Context, id int64) (*Infraction, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	var inf Infraction
	err = db.QueryRowContext(ctx, `
		SELECT id, dossier_type, dossier_id, code, description, location,
			fine_amount, paid, paid_at, photos, created_at
		FROM infractions WHERE id = $1`, id,
	).Scan(&inf.ID, &inf.DossierType, &inf.DossierID, &inf.Code, &inf.Description,
		&inf.Location, &inf.FineAmount, &inf.Paid, &inf.PaidAt, pq.Array(&inf.Photos), &inf.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load infraction: %w", err)
	}
	return &inf, nil
}

func (s *PostgresStore) ListInfractions(ctx context.Context) ([]Infraction, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, dossier_type, dossier_id, code, description, location,
			fine_amount, paid, paid_at, photos, created_at
		FROM infractions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list infractions: %w", err)
	}
	defer rows.Close()

	var out []Infraction
	for rows.Next() {
		var inf Infraction
		if err := rows.Scan(&inf.ID, &inf.DossierType, &inf.DossierID, &inf.Code, &inf.Description,
			&inf.Location, &inf.FineAmount, &inf.Paid, &inf.PaidAt, pq.Array(&inf.Photos), &inf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan infraction: %w", err)
		}
		out = append(out, inf)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkInfractionPaid(ctx context.Context, id int64) error {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE infractions SET paid = true, paid_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark infraction paid: %w", err)
	}
	return requireRow(res)
}

// -----------------------------------------------------------------------------
// Accidents, bulletins, permits
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateAccident(ctx context.Context, a *Accident) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO accidents (location, occurred_at, description, photos, implicant_photos)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.Location, a.OccurredAt, a.Description, pq.Array(a.Photos), pq.Array(a.ImplicantPhotos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert accident: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetAccident(ctx context.Context, id int64) (*Accident, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	var a Accident
	err = db.QueryRowContext(ctx, `
		SELECT id, location, occurred_at, description, photos, implicant_photos, created_at
		FROM accidents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Location, &a.OccurredAt, &a.Description, pq.Array(&a.Photos), pq.Array(&a.ImplicantPhotos), &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load accident: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAccidents(ctx context.Context) ([]Accident, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, location, occurred_at, description, photos, implicant_photos, created_at
		FROM accidents ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accidents: %w", err)
	}
	defer rows.Close()

	var out []Accident
	for rows.Next() {
		var a Accident
		if err := rows.Scan(&a.ID, &a.Location, &a.OccurredAt, &a.Description, pq.Array(&a.Photos), pq.Array(&a.ImplicantPhotos), &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan accident: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateBulletin(ctx context.Context, b *SearchBulletin) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO search_bulletins (target_type, target_id, reason)
		VALUES ($1, $2, $3) RETURNING id`,
		b.TargetType, b.TargetID, b.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bulletin: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListBulletins(ctx context.Context) ([]SearchBulletin, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, target_type, target_id, reason, active, created_at
		FROM search_bulletins ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bulletins: %w", err)
	}
	defer rows.Close()

	var out []SearchBulletin
	for rows.Next() {
		var b SearchBulletin
		if err := rows.Scan(&b.ID, &b.TargetType, &b.TargetID, &b.Reason, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bulletin: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CloseBulletin(ctx context.Context, id int64) error {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE search_bulletins SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("close bulletin: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) CreatePermit(ctx context.Context, p *TemporaryPermit) (int64, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO temporary_permits (individual_id, plate, reason, valid_from, valid_to, photos)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.IndividualID, p.Plate, p.Reason, p.ValidFrom, p.ValidTo, pq.Array(p.Photos),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert permit: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListPermits(ctx context.Context) ([]TemporaryPermit, error) {
	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, individual_id, plate, reason, valid_from, valid_to, photos, created_at
		FROM temporary_permits ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}
	defer rows.Close()

	var out []TemporaryPermit
	for rows.Next() {
		var p TemporaryPermit
		if err := rows.Scan(&p.ID, &p.IndividualID, &p.Plate, &p.Reason, &p.ValidFrom, &p.ValidTo, pq.Array(&p.Photos), &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permit: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Compositions
// -----------------------------------------------------------------------------

const insertCompanySQL = `
	INSERT INTO companies (name, registration_no, phone, address, photos)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

const insertInfractionSQL = `
	INSERT INTO infractions (dossier_type, dossier_id, code, description, location, fine_amount, photos)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

// CreateCompanyWithInfraction is the parent/dependent composition: the
// company insert's generated id keys the infraction insert, and either both
// rows land or neither does.
func (s *PostgresStore) CreateCompanyWithInfraction(ctx context.Context, c *Company, inf *Infraction, cleanups []func()) (int64, int64, error) {
	var companyID, infractionID int64

	err := s.composer.Run(ctx, func(tx *compose.Tx) error {
		for _, cleanup := range cleanups {
			tx.OnRollback(cleanup)
		}

		var err error
		companyID, err = tx.InsertReturningID(ctx, insertCompanySQL,
			c.Name, c.RegistrationNo, c.Phone, c.Address, pq.Array(c.Photos))
		if err != nil {
			return fmt.Errorf("insert company: %w", err)
		}

		infractionID, err = tx.InsertReturningID(ctx, insertInfractionSQL,
			DossierCompany, companyID, inf.Code, inf.Description, inf.Location,
			inf.FineAmount, pq.Array(inf.Photos))
		if err != nil {
			return fmt.Errorf("insert infraction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return companyID, infractionID, nil
}

// requireRow translates "no row updated" into NotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
