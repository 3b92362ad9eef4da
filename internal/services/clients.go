// Package services provides the persistent registry of local client packages,
// the audit log and the in-process event fan-out.
package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pandeptwidyaop/app-chooser/internal/database"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

var (
	// ErrClientNotFound indicates the requested client package is not registered.
	ErrClientNotFound = errors.New("client package not found")
	// ErrClientExists indicates a client with the same package id is already registered.
	ErrClientExists = errors.New("client package already exists")
)

const clientColumns = "id, package_id, display_name, command, args, actions, created_at, updated_at"

// ClientService manages the client packages installed on this host.
type ClientService struct {
	db *database.DB
}

// NewClientService creates a new ClientService instance.
func NewClientService(db *database.DB) *ClientService {
	return &ClientService{db: db}
}

// Create registers a client package.
func (s *ClientService) Create(req *models.CreateClientRequest) (*models.ClientPackage, error) {
	id := uuid.New().String()
	args, actions, err := encodeLists(req.Args, req.Actions)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		"INSERT INTO client_packages (id, package_id, display_name, command, args, actions) VALUES (?, ?, ?, ?, ?, ?)",
		id, req.PackageID, req.DisplayName, req.Command, args, actions,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrClientExists
		}
		return nil, err
	}

	return s.GetByID(id)
}

// GetByID retrieves a client package by its ID.
func (s *ClientService) GetByID(id string) (*models.ClientPackage, error) {
	return s.scanOne(s.db.QueryRow("SELECT "+clientColumns+" FROM client_packages WHERE id = ?", id))
}

// GetByPackageID retrieves a client package by the package id it provides.
func (s *ClientService) GetByPackageID(packageID string) (*models.ClientPackage, error) {
	return s.scanOne(s.db.QueryRow("SELECT "+clientColumns+" FROM client_packages WHERE package_id = ?", packageID))
}

// FindByAction returns the first client that declares action, or whose
// package id prefixes it.
func (s *ClientService) FindByAction(action string) (*models.ClientPackage, error) {
	clients, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range clients {
		for _, a := range clients[i].Actions {
			if a == action {
				return &clients[i], nil
			}
		}
	}
	for i := range clients {
		if strings.HasPrefix(action, clients[i].PackageID+".") {
			return &clients[i], nil
		}
	}
	return nil, ErrClientNotFound
}

// List retrieves all client packages ordered by package id.
func (s *ClientService) List() ([]models.ClientPackage, error) {
	rows, err := s.db.Query("SELECT " + clientColumns + " FROM client_packages ORDER BY package_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	clients := make([]models.ClientPackage, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// Update changes the non-empty fields of req.
func (s *ClientService) Update(id string, req *models.UpdateClientRequest) (*models.ClientPackage, error) {
	c, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != "" {
		c.DisplayName = req.DisplayName
	}
	if req.Command != "" {
		c.Command = req.Command
	}
	if req.Args != nil {
		c.Args = req.Args
	}
	if req.Actions != nil {
		c.Actions = req.Actions
	}
	args, actions, err := encodeLists(c.Args, c.Actions)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		"UPDATE client_packages SET display_name = ?, command = ?, args = ?, actions = ?, updated_at = ? WHERE id = ?",
		c.DisplayName, c.Command, args, actions, time.Now(), id,
	)
	if err != nil {
		return nil, err
	}

	return s.GetByID(id)
}

// Delete removes a client package.
func (s *ClientService) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM client_packages WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrClientNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ClientService) scanOne(row *sql.Row) (*models.ClientPackage, error) {
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	return c, err
}

func scanClient(row rowScanner) (*models.ClientPackage, error) {
	var (
		c             models.ClientPackage
		display       sql.NullString
		args, actions string
	)
	if err := row.Scan(&c.ID, &c.PackageID, &display, &c.Command, &args, &actions, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.DisplayName = display.String
	if err := json.Unmarshal([]byte(args), &c.Args); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &c.Actions); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeLists(args, actions []string) (string, string, error) {
	if args == nil {
		args = []string{}
	}
	if actions == nil {
		actions = []string{}
	}
	a, err := json.Marshal(args)
	if err != nil {
		return "", "", err
	}
	b, err := json.Marshal(actions)
	if err != nil {
		return "", "", err
	}
	return string(a), string(b), nil
}
