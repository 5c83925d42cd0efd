package db

// schema stores decoded summaries only; full content is re-parsed from the
// .eml file when needed.
const schema = `
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path TEXT UNIQUE NOT NULL,
    message_id TEXT,
    subject TEXT,
    sender TEXT NOT NULL,
    sender_name TEXT,
    recipients TEXT,         -- repaired To/Cc list, quote-safe comma separated
    date DATETIME,
    body_text_preview TEXT,  -- first 10KB of the decoded body
    charset TEXT,            -- charset the body was decoded with
    attachment_names TEXT,   -- decoded file names, newline separated
    has_attachments BOOLEAN DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,
    file_size INTEGER,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    subject,
    sender,
    sender_name,
    recipients,
    body_text_preview,
    attachment_names,
    content='emails',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS emails_ai AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview, attachment_names)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview, new.attachment_names);
END;

CREATE TRIGGER IF NOT EXISTS emails_ad AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview, attachment_names)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview, old.attachment_names);
END;

CREATE TRIGGER IF NOT EXISTS emails_au AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview, attachment_names)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview, old.attachment_names);
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview, attachment_names)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview, new.attachment_names);
END;

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    content_type TEXT,
    size INTEGER,
    FOREIGN KEY(email_id) REFERENCES emails(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date DESC);
CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_charset ON emails(charset);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_email_id ON attachments(email_id);
`
