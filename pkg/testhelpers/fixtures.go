package testhelpers

// FixtureSchema seeds the "profiling" schema used by integration tests.
//
//   - customers: 100 rows, 80 well-formed emails and 20 malformed ones.
//   - orders: 101 rows. amount holds 1..100 plus a single 10000, which is
//     the only 3-sigma outlier. customer_id is a declared FK, id_customer
//     is the same data without a constraint. is_active is true on even
//     rows; dt_active is NULL on 10 of those.
const FixtureSchema = `
DROP SCHEMA IF EXISTS profiling CASCADE;
CREATE SCHEMA profiling;

CREATE TABLE profiling.customers (
	id SERIAL PRIMARY KEY,
	email TEXT,
	full_name TEXT,
	created_at TIMESTAMP NOT NULL
);

INSERT INTO profiling.customers (email, full_name, created_at)
SELECT
	CASE WHEN g <= 80 THEN 'user' || g || '@example.com' ELSE 'not-an-email-' || g END,
	'Customer ' || g,
	TIMESTAMP '2024-01-01' + (g || ' days')::interval
FROM generate_series(1, 100) g;

CREATE TABLE profiling.orders (
	id SERIAL PRIMARY KEY,
	customer_id INT REFERENCES profiling.customers(id),
	id_customer INT,
	amount NUMERIC(12, 2),
	quantity INT,
	is_active BOOLEAN,
	dt_active TIMESTAMP
);

INSERT INTO profiling.orders (customer_id, id_customer, amount, quantity, is_active, dt_active)
SELECT
	((g - 1) % 100) + 1,
	((g - 1) % 100) + 1,
	CASE WHEN g = 101 THEN 10000 ELSE g END,
	g * 2,
	g % 2 = 0,
	CASE WHEN g % 2 = 0 AND g % 10 <> 0 THEN TIMESTAMP '2024-01-01' + (g || ' hours')::interval END
FROM generate_series(1, 101) g;

ANALYZE profiling.customers;
ANALYZE profiling.orders;
`
