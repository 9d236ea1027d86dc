package main

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/bcda-aps/specd/server"
	"github.com/bcda-aps/specd/specfile"
	"github.com/bcda-aps/specd/specwriter"
)

// Config is a struct that holds the initialization parameters for the
// recorder daemon.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// File is the SPEC data file to write.  Empty generates a
	// YYYYMMDD-HHMMSS.dat name in the working directory.
	File string `yaml:"File" koanf:"File"`

	// Append continues a populated file with a fresh header block instead
	// of treating it as an error
	Append bool `yaml:"Append" koanf:"Append"`

	// AutoWrite writes each scan when its stop document arrives.  When
	// false, a scan is only written on POST /write.
	AutoWrite bool `yaml:"AutoWrite" koanf:"AutoWrite"`
}

// BuildMux constructs the recorder and returns the router serving it.
func BuildMux(c Config) chi.Router {
	mode := specfile.ErrorOnExisting
	if c.Append {
		mode = specfile.AppendExisting
	}
	w := specwriter.New(specwriter.Config{
		Path:      c.File,
		Mode:      mode,
		AutoWrite: c.AutoWrite,
	})
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	server.New(w).Bind(root)
	return root
}
