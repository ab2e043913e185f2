package database

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    k VARCHAR(512) NOT NULL PRIMARY KEY,
    v LONGTEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    k TEXT NOT NULL PRIMARY KEY,
    v TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
