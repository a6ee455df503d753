package repos

import (
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// DefaultSellerPassword is assigned to sellers created by an admin until they
// change it from their dashboard.
const DefaultSellerPassword = "123456"

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: keeps ":memory:" databases shared across calls and
	// serializes writers the way sqlite wants anyway.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	// Ensure accounts exist (idempotent; safe to run every start)
	if err := seedUsers(db); err != nil {
		return nil, err
	}
	return db, nil
}

// stampLayout sorts lexicographically, so created_at range filters can compare strings.
const stampLayout = "2006-01-02T15:04:05.000000Z"

// Stamp formats t the way every *_at column is stored.
func Stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

func now() string { return Stamp(time.Now()) }

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Users & Sessions
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  nik TEXT NOT NULL UNIQUE,
  department TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL CHECK (role IN ('admin','seller')),
  password_hash TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,
  user_id TEXT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  last_seen  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

-- Catalog
CREATE TABLE IF NOT EXISTS categories(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  icon TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_nocase ON categories(LOWER(name));

CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price INTEGER NOT NULL CHECK (price >= 0),
  stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  category TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  seller_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_seller   ON products(seller_id);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

-- Ledger
CREATE TABLE IF NOT EXISTS transactions(
  id TEXT PRIMARY KEY,
  order_ref TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  total_amount INTEGER NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','verified','failed','cancelled')),
  payment_proof_url TEXT NOT NULL DEFAULT '',
  verification_notes TEXT NOT NULL DEFAULT '',
  verification_attempts INTEGER NOT NULL DEFAULT 1,
  seller_id TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_seller  ON transactions(seller_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);

CREATE TABLE IF NOT EXISTS transaction_items(
  transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  price INTEGER NOT NULL,
  subtotal INTEGER NOT NULL,
  PRIMARY KEY (transaction_id, product_id)
);

CREATE TABLE IF NOT EXISTS withdrawals(
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  amount INTEGER NOT NULL CHECK (amount > 0),
  fee_amount INTEGER NOT NULL,
  net_amount INTEGER NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','completed')),
  bank_name TEXT NOT NULL,
  account_number TEXT NOT NULL,
  account_name TEXT NOT NULL,
  transfer_proof_url TEXT NOT NULL DEFAULT '',
  admin_notes TEXT NOT NULL DEFAULT '',
  requested_at TEXT NOT NULL,
  processed_at TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_withdrawals_seller ON withdrawals(seller_id);

-- Audit
CREATE TABLE IF NOT EXISTS failed_validations(
  id TEXT PRIMARY KEY,
  customer_name TEXT NOT NULL,
  attempted_amount INTEGER NOT NULL,
  failure_reason TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failed_created ON failed_validations(created_at);

-- Payment config (singleton)
CREATE TABLE IF NOT EXISTS qris_config(
  id TEXT PRIMARY KEY,
  image_url TEXT NOT NULL,
  merchant_name TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  updated_at TEXT NOT NULL,
  updated_by TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	return err
}

type seedUser struct {
	ID, Email, Name, NIK, Dept, Phone, Role, Password string
}

var seedAccounts = []seedUser{
	{"seller-1", "akhmad.fiqri@spcorner.com", "Akhmad Fiqri Ramdani", "14220148", "Sales GT", "85540101926", "seller", DefaultSellerPassword},
	{"seller-2", "nurul.hasanah@spcorner.com", "Nurul Hasanah", "14220207", "Marketing", "85651492899", "seller", DefaultSellerPassword},
	{"seller-3", "muhammad.fauzan@spcorner.com", "Muhammad Fauzan", "14230141", "SCM", "85753539869", "seller", DefaultSellerPassword},
	{"seller-4", "dadang.hardito@spcorner.com", "Dadang Hardito", "14210103", "Produksi", "87754496370", "seller", DefaultSellerPassword},
	{"seller-5", "hidayatullah@spcorner.com", "Hidayatullah", "14210119", "Make up", "85920140184", "seller", DefaultSellerPassword},
	{"admin-1", "admin@spcorner.com", "Administrator SPS", "admin", "Administration", "00000000000", "admin", "Admin#2026"},
}

// seedUsers ensures the admin and the initial sellers exist (idempotent).
func seedUsers(db *sqlx.DB) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	for _, x := range seedAccounts {
		var n int
		if err := tx.Get(&n, `SELECT COUNT(*) FROM users WHERE id=? OR nik=?`, x.ID, x.NIK); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(x.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO users(id,email,full_name,nik,department,phone,role,password_hash,created_at,updated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?)
		`, x.ID, x.Email, x.Name, x.NIK, x.Dept, x.Phone, x.Role, string(h), ts, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// seedIfEmpty inserts the demo catalog and the QRIS target on a fresh database.
func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM categories`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// products reference sellers
	if err := seedUsers(db); err != nil {
		return err
	}

	log.Println("[seed] inserting demo categories/products/qris")

	ts := now()
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	tx.MustExec(`INSERT INTO categories(id,name,icon,created_at) VALUES
	  ('cat-1','Makanan','UtensilsCrossed',?),
	  ('cat-2','Snack','Cookie',?),
	  ('cat-3','Minuman','Coffee',?)`, ts, ts, ts)

	type p struct {
		id, name, desc string
		price          int64
		stock          int
		cat, seller    string
	}
	products := []p{
		{"prod-1", "Buras", "Makanan yang dicampur dengan bumbu kacang, rasanya nikmat", 5000, 50, "Makanan", "seller-1"},
		{"prod-2", "Risol Matcha", "Risol dengan isian matcha yang lezat", 3000, 30, "Snack", "seller-2"},
		{"prod-3", "Risol Cokelat", "Risol dengan isian cokelat yang manis", 3000, 30, "Snack", "seller-2"},
		{"prod-4", "Keripik Pisang", "Keripik pisang renyah dan gurih", 8000, 40, "Snack", "seller-2"},
		{"prod-5", "Basreng", "Basreng pedas gurih", 7000, 35, "Snack", "seller-3"},
		{"prod-6", "Kerupuk Aneka 3K", "Aneka macam kerupuk harga 3000", 3000, 60, "Snack", "seller-3"},
		{"prod-7", "Kerupuk Aneka 5K", "Aneka macam kerupuk harga 5000", 5000, 50, "Snack", "seller-3"},
		{"prod-8", "Krupuk Acan Bantat BBQ", "Krupuk acan bantat rasa BBQ", 5000, 45, "Snack", "seller-4"},
		{"prod-9", "Krupuk Acan Bantat Balado", "Krupuk acan bantat rasa balado", 5000, 45, "Snack", "seller-4"},
		{"prod-10", "Krupuk Acan Bantat Original", "Krupuk acan bantat rasa original", 5000, 45, "Snack", "seller-4"},
		{"prod-11", "Risol Mayo", "Risol dengan isian mayonnaise", 2500, 40, "Snack", "seller-5"},
		{"prod-12", "Risol Ayam", "Risol dengan isian ayam", 2500, 40, "Snack", "seller-5"},
	}
	for _, x := range products {
		tx.MustExec(`
			INSERT INTO products(id,name,description,price,stock,category,image_url,seller_id,is_active,created_at,updated_at)
			VALUES(?,?,?,?,?,?,?,?,1,?,?)
		`, x.id, x.name, x.desc, x.price, x.stock, x.cat, "products/"+x.id+".jpg", x.seller, ts, ts)
	}

	tx.MustExec(`INSERT INTO qris_config(id,image_url,merchant_name,is_active,updated_at,updated_by)
	  VALUES('qris-1','qris/default.png','SPS Corner',1,?,'admin-1')`, ts)

	return tx.Commit()
}
