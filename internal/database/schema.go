package database

const schema = `
CREATE TABLE IF NOT EXISTS coin_accounts (
    user_id BIGINT PRIMARY KEY,
    balance INT NOT NULL DEFAULT 0,
    total_spent INT NOT NULL DEFAULT 0,
    total_generated INT NOT NULL DEFAULT 0,
    monthly_count INT NOT NULL DEFAULT 0,
    monthly_limit INT NULL,
    month_start DATE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CONSTRAINT chk_balance_non_negative CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS coin_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount INT NOT NULL,
    kind VARCHAR(16) NOT NULL,
    previous_balance INT NOT NULL,
    new_balance INT NOT NULL,
    description VARCHAR(255) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_tx_user (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES coin_accounts(user_id)
);

CREATE TABLE IF NOT EXISTS notes (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NULL,
    title VARCHAR(255) NOT NULL,
    template_id VARCHAR(32) NOT NULL,
    page_count INT NOT NULL,
    coins_spent INT NOT NULL DEFAULT 0,
    html_content LONGTEXT NOT NULL,
    warning VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_notes_user (user_id, created_at)
);
`
