package model

// Display is the (name, server) pair shown in listings. It is derived
// independently of whether the link converts.
type Display struct {
	Name   string `json:"name"`
	Server string `json:"server"`
}

// Record is one imported link. ConfigJSON is the serialized RuntimeConfig
// produced at import time and never recomputed.
type Record struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Server     string `json:"server"`
	ConfigJSON string `json:"config_json"`
}
