package database

// schemaStatements defines the durable tables. Forecasts and settlements
// carry unique keys so ingestion writes stay idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		api_key_id TEXT NOT NULL,
		encrypted_private_key BLOB NOT NULL,
		settings_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS weather_forecasts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city TEXT NOT NULL,
		target_date TEXT NOT NULL,
		source TEXT NOT NULL,
		predicted_high_f REAL NOT NULL,
		model_run_ts TEXT NOT NULL,
		raw_json TEXT,
		fetched_at TEXT NOT NULL,
		UNIQUE(city, target_date, source, model_run_ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_city_date
		ON weather_forecasts(city, target_date, fetched_at)`,

	`CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city TEXT NOT NULL,
		target_date TEXT NOT NULL,
		ensemble_high_f REAL NOT NULL,
		bracket_probs_json TEXT NOT NULL,
		confidence TEXT NOT NULL,
		model_sources_json TEXT NOT NULL,
		forecast_spread_f REAL NOT NULL,
		error_std_f REAL NOT NULL,
		generated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_city_date
		ON predictions(city, target_date, generated_at)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		city TEXT NOT NULL,
		target_date TEXT NOT NULL,
		bracket_ticker TEXT NOT NULL,
		bracket_label TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price_cents INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		model_prob REAL NOT NULL,
		market_prob REAL NOT NULL,
		ev_at_entry REAL NOT NULL,
		confidence TEXT NOT NULL,
		exchange_order_id TEXT,
		status TEXT NOT NULL,
		settlement_temp_f REAL,
		pnl_cents INTEGER,
		postmortem TEXT,
		weather_snapshot_json TEXT,
		prediction_snapshot_json TEXT,
		created_at TEXT NOT NULL,
		settled_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_status
		ON trades(user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_city_date
		ON trades(city, target_date)`,

	`CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city TEXT NOT NULL,
		target_date TEXT NOT NULL,
		actual_high_f REAL NOT NULL,
		source TEXT NOT NULL DEFAULT 'NWS_CLI',
		raw_json TEXT,
		fetched_at TEXT NOT NULL,
		UNIQUE(city, target_date)
	)`,

	`CREATE TABLE IF NOT EXISTS pending_trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		signal_json TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		acted_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_status
		ON pending_trades(status, expires_at)`,

	`CREATE TABLE IF NOT EXISTS forecast_grids (
		city TEXT PRIMARY KEY,
		grid_id TEXT NOT NULL,
		grid_x INTEGER NOT NULL,
		grid_y INTEGER NOT NULL,
		forecast_url TEXT NOT NULL,
		forecast_hourly_url TEXT NOT NULL,
		forecast_grid_data_url TEXT NOT NULL,
		cached_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		module TEXT NOT NULL,
		message TEXT NOT NULL,
		data_json TEXT
	)`,
}
