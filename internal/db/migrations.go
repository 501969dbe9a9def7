package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version int
	sql     string
}

// Типы колонок, отличающиеся между диалектами
type dialect struct {
	id      string
	time    string
	money   string
	json    string
	boolean string
}

var (
	postgresDialect = dialect{id: "UUID", time: "TIMESTAMPTZ", money: "NUMERIC(14,2)", json: "JSONB", boolean: "BOOLEAN"}
	sqliteDialect   = dialect{id: "TEXT", time: "DATETIME", money: "TEXT", json: "TEXT", boolean: "INTEGER"}
)

// schema описывает миграции в виде шаблонов с типами диалекта
var schema = []migration{
	{1, `
CREATE TABLE IF NOT EXISTS profiles (
	id {ID} PRIMARY KEY,
	telegram_id BIGINT NOT NULL UNIQUE,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user',
	kyc_verified {BOOL} NOT NULL DEFAULT FALSE,
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL,
	last_login_at {TIME}
);

CREATE TABLE IF NOT EXISTS products (
	id {ID} PRIMARY KEY,
	user_id {ID} NOT NULL REFERENCES profiles(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	categories {JSON} NOT NULL,
	condition TEXT NOT NULL DEFAULT 'new',
	price {MONEY},
	allow_trade {BOOL} NOT NULL DEFAULT TRUE,
	status TEXT NOT NULL DEFAULT 'draft',
	location TEXT NOT NULL DEFAULT '',
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_user ON products(user_id);
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status, created_at);

CREATE TABLE IF NOT EXISTS product_images (
	id {ID} PRIMARY KEY,
	product_id {ID} NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	public_id TEXT NOT NULL DEFAULT '',
	is_main {BOOL} NOT NULL DEFAULT FALSE,
	position INTEGER NOT NULL DEFAULT 0,
	created_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id);

CREATE TABLE IF NOT EXISTS favorites (
	id {ID} PRIMARY KEY,
	user_id {ID} NOT NULL REFERENCES profiles(id),
	product_id {ID} NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	created_at {TIME} NOT NULL,
	UNIQUE (user_id, product_id)
);

CREATE TABLE IF NOT EXISTS trade_proposals (
	id {ID} PRIMARY KEY,
	proposer_id {ID} NOT NULL REFERENCES profiles(id),
	receiver_id {ID} NOT NULL REFERENCES profiles(id),
	proposer_product_id {ID} REFERENCES products(id),
	receiver_product_id {ID} NOT NULL REFERENCES products(id),
	message TEXT NOT NULL DEFAULT '',
	cash_difference {MONEY} NOT NULL DEFAULT 0,
	cash_from TEXT NOT NULL DEFAULT 'none',
	status TEXT NOT NULL DEFAULT 'pending',
	response_message TEXT NOT NULL DEFAULT '',
	responded_at {TIME},
	completed_at {TIME},
	expires_at {TIME} NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL,
	CHECK (proposer_id <> receiver_id),
	CHECK (cash_from IN ('proposer', 'receiver', 'none')),
	CHECK (status IN ('pending', 'accepted', 'rejected', 'cancelled', 'completed', 'expired'))
);
CREATE INDEX IF NOT EXISTS idx_trades_proposer ON trade_proposals(proposer_id, status);
CREATE INDEX IF NOT EXISTS idx_trades_receiver ON trade_proposals(receiver_id, status);
CREATE INDEX IF NOT EXISTS idx_trades_expiry ON trade_proposals(status, expires_at);

CREATE TABLE IF NOT EXISTS escrow_transactions (
	id {ID} PRIMARY KEY,
	trade_proposal_id {ID} REFERENCES trade_proposals(id),
	payer_id {ID} NOT NULL REFERENCES profiles(id),
	receiver_id {ID} NOT NULL REFERENCES profiles(id),
	amount {MONEY} NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	payment_method TEXT NOT NULL DEFAULT '',
	payment_reference TEXT NOT NULL DEFAULT '',
	dispute_reason TEXT NOT NULL DEFAULT '',
	funded_at {TIME},
	released_at {TIME},
	refunded_at {TIME},
	version BIGINT NOT NULL DEFAULT 1,
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL,
	CHECK (payer_id <> receiver_id),
	CHECK (status IN ('pending', 'funded', 'released', 'refunded', 'disputed'))
);
CREATE INDEX IF NOT EXISTS idx_escrow_payer ON escrow_transactions(payer_id);
CREATE INDEX IF NOT EXISTS idx_escrow_receiver ON escrow_transactions(receiver_id);

CREATE TABLE IF NOT EXISTS notifications (
	id {ID} PRIMARY KEY,
	user_id {ID} NOT NULL REFERENCES profiles(id),
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	reference_id {ID},
	reference_type TEXT NOT NULL DEFAULT '',
	read {BOOL} NOT NULL DEFAULT FALSE,
	read_at {TIME},
	created_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read, created_at);

CREATE TABLE IF NOT EXISTS outbox_events (
	id {ID} PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id {ID} NOT NULL,
	event_type TEXT NOT NULL,
	recipient_id {ID} NOT NULL,
	payload {JSON} NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at {TIME} NOT NULL,
	locked_until {TIME},
	last_error TEXT NOT NULL DEFAULT '',
	delivered_at {TIME},
	created_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_attempt_at);

CREATE TABLE IF NOT EXISTS conversations (
	id {ID} PRIMARY KEY,
	participant_a {ID} NOT NULL REFERENCES profiles(id),
	participant_b {ID} NOT NULL REFERENCES profiles(id),
	trade_proposal_id {ID} REFERENCES trade_proposals(id),
	last_message_text TEXT NOT NULL DEFAULT '',
	last_message_at {TIME},
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL,
	UNIQUE (participant_a, participant_b),
	CHECK (participant_a <> participant_b)
);

CREATE TABLE IF NOT EXISTS messages (
	id {ID} PRIMARY KEY,
	conversation_id {ID} NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id {ID} NOT NULL REFERENCES profiles(id),
	receiver_id {ID} NOT NULL REFERENCES profiles(id),
	content TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'text',
	trade_proposal_id {ID} REFERENCES trade_proposals(id),
	read_at {TIME},
	created_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, read_at);
`},
	{2, `
CREATE TABLE IF NOT EXISTS reviews (
	id {ID} PRIMARY KEY,
	trade_proposal_id {ID} NOT NULL REFERENCES trade_proposals(id),
	reviewer_id {ID} NOT NULL REFERENCES profiles(id),
	reviewed_id {ID} NOT NULL REFERENCES profiles(id),
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment TEXT NOT NULL DEFAULT '',
	created_at {TIME} NOT NULL,
	UNIQUE (trade_proposal_id, reviewer_id)
);
CREATE INDEX IF NOT EXISTS idx_reviews_reviewed ON reviews(reviewed_id);

CREATE TABLE IF NOT EXISTS shipping_orders (
	id {ID} PRIMARY KEY,
	trade_proposal_id {ID} NOT NULL REFERENCES trade_proposals(id),
	sender_id {ID} NOT NULL REFERENCES profiles(id),
	receiver_id {ID} NOT NULL REFERENCES profiles(id),
	carrier TEXT NOT NULL,
	tracking_number TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	shipped_at {TIME},
	delivered_at {TIME},
	version BIGINT NOT NULL DEFAULT 1,
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shipping_trade ON shipping_orders(trade_proposal_id);

CREATE TABLE IF NOT EXISTS kyc_verifications (
	id {ID} PRIMARY KEY,
	user_id {ID} NOT NULL REFERENCES profiles(id),
	document_type TEXT NOT NULL,
	document_number TEXT NOT NULL,
	front_image_url TEXT NOT NULL,
	back_image_url TEXT NOT NULL DEFAULT '',
	selfie_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	rejection_reason TEXT NOT NULL DEFAULT '',
	reviewed_by {ID} REFERENCES profiles(id),
	reviewed_at {TIME},
	version BIGINT NOT NULL DEFAULT 1,
	created_at {TIME} NOT NULL,
	updated_at {TIME} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kyc_user ON kyc_verifications(user_id, status);
`},
	{3, `
CREATE UNIQUE INDEX IF NOT EXISTS uq_trades_pending_pair ON trade_proposals(
	proposer_id, receiver_product_id, COALESCE(proposer_product_id, '00000000-0000-0000-0000-000000000000')
) WHERE status = 'pending';

CREATE UNIQUE INDEX IF NOT EXISTS uq_kyc_active_user ON kyc_verifications(user_id)
	WHERE status IN ('pending', 'approved');
`},
}

func (d dialect) render(sql string) string {
	return strings.NewReplacer(
		"{ID}", d.id,
		"{TIME}", d.time,
		"{MONEY}", d.money,
		"{JSON}", d.json,
		"{BOOL}", d.boolean,
	).Replace(sql)
}

// Migrate применяет недостающие миграции схемы
func (d *DB) Migrate(ctx context.Context) error {
	dl := sqliteDialect
	if d.IsPostgres() {
		dl = postgresDialect
	}

	if _, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion := 0
	if err := d.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range schema {
		if m.version <= currentVersion {
			continue
		}
		err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range splitStatements(dl.render(m.sql)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		log.Infof("Применена миграция схемы v%d", m.version)
	}
	return nil
}

func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
