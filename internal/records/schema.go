package records

// Schema is the records DDL, applied on startup and by the integration test
// harness. Photos are stored as public path arrays; the files themselves live
// on disk under the upload root.
const Schema = `
CREATE TABLE IF NOT EXISTS individuals (
	id          BIGSERIAL PRIMARY KEY,
	first_name  TEXT NOT NULL,
	last_name   TEXT NOT NULL,
	national_id TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	photos      TEXT[] NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	registration_no TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	photos          TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vehicles (
	id         BIGSERIAL PRIMARY KEY,
	plate      TEXT NOT NULL,
	brand      TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	color      TEXT NOT NULL DEFAULT '',
	owner_type TEXT NOT NULL DEFAULT '',
	owner_id   BIGINT NOT NULL DEFAULT 0,
	photos     TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS infractions (
	id           BIGSERIAL PRIMARY KEY,
	dossier_type TEXT NOT NULL,
	dossier_id   BIGINT NOT NULL,
	code         TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	fine_amount  BIGINT NOT NULL DEFAULT 0,
	paid         BOOLEAN NOT NULL DEFAULT false,
	paid_at      TIMESTAMPTZ,
	photos       TEXT[] NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS infractions_dossier_idx ON infractions (dossier_type, dossier_id);

CREATE TABLE IF NOT EXISTS accidents (
	id          BIGSERIAL PRIMARY KEY,
	location    TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	description TEXT NOT NULL DEFAULT '',
	photos      TEXT[] NOT NULL DEFAULT '{}',
	implicant_photos TEXT[] NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_bulletins (
	id          BIGSERIAL PRIMARY KEY,
	target_type TEXT NOT NULL,
	target_id   BIGINT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS temporary_permits (
	id            BIGSERIAL PRIMARY KEY,
	individual_id BIGINT NOT NULL,
	plate         TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	valid_from    TIMESTAMPTZ NOT NULL,
	valid_to      TIMESTAMPTZ NOT NULL,
	photos        TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
