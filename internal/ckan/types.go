package ckan

import "encoding/json"

// envelope is the standard CKAN action API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}

// apiError is the error body CKAN returns when Success is false.
type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (e *apiError) String() string {
	if e == nil {
		return "unknown catalog error"
	}
	if e.Type != "" {
		return e.Type + ": " + e.Message
	}
	return e.Message
}

// Package is a CKAN dataset: a named collection of resources.
type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// Resource is one datastore-backed table within a package. Name carries
// the partition label for reading stores (e.g. "bms-jan-2017").
type Resource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	LastModified string `json:"last_modified"`
}

// sqlResult is the result body of datastore_search_sql.
type sqlResult struct {
	Records []map[string]any `json:"records"`
}
