package iap

// Schema contains sql commands to setup the database to work for the iap app.
const Schema = `
CREATE TABLE IF NOT EXISTS app (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp
);
CREATE TABLE IF NOT EXISTS device (
	id VARCHAR(26) PRIMARY KEY,
	uid VARCHAR(255) NOT NULL,
	app_id INTEGER REFERENCES app(id) NOT NULL,
	language VARCHAR(35) NOT NULL,
	os SMALLINT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp,
	UNIQUE (uid, app_id)
);
CREATE TABLE IF NOT EXISTS subscription (
	id VARCHAR(26) PRIMARY KEY,
	uid VARCHAR(255) NOT NULL,
	app_id INTEGER NOT NULL,
	receipt TEXT NOT NULL,
	status VARCHAR(10) NOT NULL,
	expire_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp,
	UNIQUE (uid, app_id)
);
CREATE INDEX IF NOT EXISTS subscription_lapsed_idx
	ON subscription (expire_at) WHERE status <> 'canceled';
CREATE TABLE IF NOT EXISTS webhook (
	id VARCHAR(26) PRIMARY KEY,
	app_id INTEGER REFERENCES app(id) NOT NULL,
	url VARCHAR(1024) NOT NULL,
	secret VARCHAR(255) NOT NULL,
	events TEXT[] NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp
);
CREATE TABLE IF NOT EXISTS webhook_delivery (
	event_id VARCHAR(26) NOT NULL,
	webhook_id VARCHAR(26) REFERENCES webhook(id) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT current_timestamp,
	PRIMARY KEY (event_id, webhook_id)
);
`
