package pgdb

// Schema creates every table this service owns. Integration tests apply it
// to a throwaway database; production migrations live with the deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS offerers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS venues (
	id UUID PRIMARY KEY,
	offerer_id UUID NOT NULL REFERENCES offerers (id),
	name TEXT NOT NULL,
	provider TEXT,
	provider_active BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS offers (
	id UUID PRIMARY KEY,
	venue_id UUID NOT NULL REFERENCES venues (id),
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_duo BOOLEAN NOT NULL DEFAULT FALSE,
	is_digital BOOLEAN NOT NULL DEFAULT FALSE,
	has_activation_codes BOOLEAN NOT NULL DEFAULT FALSE,
	expense_category TEXT NOT NULL DEFAULT 'OTHER'
);

CREATE TABLE IF NOT EXISTS stocks (
	id UUID PRIMARY KEY,
	offer_id UUID NOT NULL REFERENCES offers (id),
	price NUMERIC(10, 2) NOT NULL,
	quantity INTEGER,
	booked_quantity INTEGER NOT NULL DEFAULT 0,
	beginning_datetime TIMESTAMPTZ,
	booking_limit_datetime TIMESTAMPTZ,
	soft_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	CONSTRAINT booked_within_quantity CHECK (quantity IS NULL OR booked_quantity <= quantity)
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL CHECK (role IN ('BENEFICIARY', 'PRO', 'ADMIN'))
);

CREATE TABLE IF NOT EXISTS deposits (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users (id),
	amount NUMERIC(10, 2) NOT NULL,
	expiration_date TIMESTAMPTZ,
	digital_cap NUMERIC(10, 2),
	physical_cap NUMERIC(10, 2),
	date_created TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users (id),
	stock_id UUID NOT NULL REFERENCES stocks (id),
	offer_id UUID NOT NULL,
	venue_id UUID NOT NULL,
	deposit_id UUID REFERENCES deposits (id),
	quantity INTEGER NOT NULL,
	amount NUMERIC(10, 2) NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('CONFIRMED', 'USED', 'CANCELLED', 'REIMBURSED')),
	token TEXT NOT NULL UNIQUE,
	date_created TIMESTAMPTZ NOT NULL,
	date_used TIMESTAMPTZ,
	cancellation_date TIMESTAMPTZ,
	cancellation_reason TEXT,
	cancellation_limit_date TIMESTAMPTZ,
	activation_code TEXT,
	used_by_activation_code BOOLEAN NOT NULL DEFAULT FALSE,
	display_as_ended BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS bookings_stock_idx ON bookings (stock_id);
CREATE INDEX IF NOT EXISTS bookings_user_offer_idx ON bookings (user_id, offer_id);
CREATE INDEX IF NOT EXISTS bookings_deposit_idx ON bookings (deposit_id);

CREATE TABLE IF NOT EXISTS external_bookings (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings (id),
	barcode TEXT NOT NULL,
	seat_number TEXT,
	additional_info JSONB
);

CREATE TABLE IF NOT EXISTS activation_codes (
	id UUID PRIMARY KEY,
	stock_id UUID NOT NULL REFERENCES stocks (id),
	code TEXT NOT NULL,
	expiration_date TIMESTAMPTZ,
	booking_id UUID REFERENCES bookings (id),
	date_created TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS finance_events (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings (id),
	motive TEXT NOT NULL,
	status TEXT NOT NULL,
	value_date TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pricings (
	id UUID PRIMARY KEY,
	finance_event_id UUID NOT NULL REFERENCES finance_events (id),
	booking_id UUID NOT NULL REFERENCES bookings (id),
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT
);
`
