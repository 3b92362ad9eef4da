package models

import "time"

// ClientPackage is a client application installed on this host, keyed by the
// package id derived from a remote app's intent action.
type ClientPackage struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
	PackageID   string    `json:"package_id"`
	DisplayName string    `json:"display_name"`
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	Actions     []string  `json:"actions"`
}

// CreateClientRequest contains the data for registering a client package.
type CreateClientRequest struct {
	PackageID   string   `json:"package_id" binding:"required"`
	DisplayName string   `json:"display_name"`
	Command     string   `json:"command" binding:"required"`
	Args        []string `json:"args"`
	Actions     []string `json:"actions"`
}

// UpdateClientRequest contains the data for updating a registered client package.
type UpdateClientRequest struct {
	DisplayName string   `json:"display_name"`
	Command     string   `json:"command"`
	Args        []string `json:"args"`
	Actions     []string `json:"actions"`
}
