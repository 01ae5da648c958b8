package data

import (
	"database/sql"
	"errors"
	"path/filepath"

	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// Repositories contains all stores backed by local storage
type Repositories struct {
	DB         *sql.DB
	Group      repo.GroupRepo
	User       repo.UserRepo
	Bot        repo.BotRepo
	ExecLog    repo.ExecLogRepo
	Credential repo.CredentialRepo
}

// NewPolicyRepositories opens the SQLite policy database and creates its repositories.
// The credential store is left nil; cmd/guard-mcp only needs policy access.
func NewPolicyRepositories(dbPath string) (*Repositories, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	r := &Repositories{DB: db}
	if r.Group, err = NewGroupRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.User, err = NewUserRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.Bot, err = NewBotRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.ExecLog, err = NewExecLogRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewRepositories creates all repositories under dataDir: guard.db for policies and creds/ for credentials
func NewRepositories(dataDir string) (*Repositories, error) {
	r, err := NewPolicyRepositories(filepath.Join(dataDir, "guard.db"))
	if err != nil {
		return nil, err
	}

	r.Credential, err = NewCredentialRepo(filepath.Join(dataDir, "creds"))
	if err != nil {
		r.DB.Close()
		return nil, err
	}
	return r, nil
}

// Close closes every opened store
func (r *Repositories) Close() error {
	var errs []error
	if r.Credential != nil {
		errs = append(errs, r.Credential.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}
