package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id             TEXT PRIMARY KEY,
    handle         TEXT UNIQUE NOT NULL,
    email          TEXT UNIQUE,
    password_hash  TEXT NOT NULL,
    token_balance  REAL NOT NULL DEFAULT 0,
    reputation     INTEGER NOT NULL DEFAULT 0 CHECK(reputation >= 0),
    is_validator   INTEGER NOT NULL DEFAULT 0 CHECK(is_validator IN (0, 1)),
    ledger_frozen  INTEGER NOT NULL DEFAULT 0 CHECK(ledger_frozen IN (0, 1)),
    created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
    last_seen_at   DATETIME
);

CREATE TABLE IF NOT EXISTS problems (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL CHECK(length(title) <= 200),
    description   TEXT NOT NULL,
    author_id     TEXT NOT NULL REFERENCES users(id),
    reward_amount REAL NOT NULL CHECK(reward_amount > 0),
    created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_problems_author ON problems(author_id);
CREATE INDEX IF NOT EXISTS idx_problems_created ON problems(created_at DESC);

CREATE TABLE IF NOT EXISTS solutions (
    id         TEXT PRIMARY KEY,
    problem_id TEXT NOT NULL REFERENCES problems(id),
    solver_id  TEXT NOT NULL REFERENCES users(id),
    content    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','approved','rejected')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(problem_id, solver_id)
);
CREATE INDEX IF NOT EXISTS idx_solutions_problem ON solutions(problem_id);
CREATE INDEX IF NOT EXISTS idx_solutions_status ON solutions(status) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS validations (
    id           TEXT PRIMARY KEY,
    solution_id  TEXT UNIQUE NOT NULL REFERENCES solutions(id),
    validator_id TEXT NOT NULL REFERENCES users(id),
    decision     TEXT NOT NULL CHECK(decision IN ('approved','rejected')),
    feedback     TEXT,
    created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES users(id),
    amount      REAL NOT NULL CHECK(amount != 0),
    type        TEXT NOT NULL CHECK(type IN ('signup_grant','problem_post','solution_reward','validation_reward')),
    description TEXT NOT NULL DEFAULT '',
    problem_id  TEXT REFERENCES problems(id),
    solution_id TEXT REFERENCES solutions(id),
    created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC);
`
