package mysql

const insertRunSQL = `
INSERT INTO sync_runs
  (app_id, started_at, finished_at, candidates, rejected, merged, attempts, accepted, outcome, error)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewsPrefix = "INSERT INTO run_reviews\n" +
	"  (run_id, seq, sig_hash, signature, source, source_id, author, title, `text`, rating,\n" +
	"   review_date, version, developer_response_text, developer_response_at, raw)\nVALUES "

const reviewRowPlaceholders = "(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"

// rows per multi-row INSERT
const reviewBatchSize = 200

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const runColumns = `id, app_id, started_at, finished_at, candidates, rejected, merged, attempts, accepted, outcome, error`

const getRunSQL = `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ?`

const listRunsSQL = `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`

// Keyset pagination on seq; the caller asks for limit+1 rows to detect a next page.
const listRunReviewsSQL = "SELECT\n" +
	"  seq, signature, source, source_id, author, title, `text`, rating,\n" +
	"  review_date, version, developer_response_text, developer_response_at, raw\n" +
	"FROM run_reviews\n" +
	"WHERE run_id = ? AND seq > ?\n" +
	"ORDER BY seq\n" +
	"LIMIT ?"
