// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faq

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/go-playground/validator/v10"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
)

var catalogValidate = validator.New()

// Static serves answers from an in-memory Catalog.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Static struct {
	catalog Catalog
	clinic  clinic.Source
}

// NewStatic wraps catalog. src supplies the clinic phone for placeholder
// substitution and may be nil.
func NewStatic(catalog Catalog, src clinic.Source) *Static {
	return &Static{catalog: catalog, clinic: src}
}

// Lookup implements Lookup.
func (s *Static) Lookup(_ context.Context, text string, category Category) (string, bool) {
	return Match(s.catalog[category], text, phoneOf(s.clinic))
}

var _ Lookup = (*Static)(nil)

// ParseCatalog decodes and validates a YAML catalog:
//
//	prescription:
//	  - keywords: [refill, "refill request"]
//	    answer: "Call us at {clinic_phone} for refills."
func ParseCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		if err == io.EOF {
			return Catalog{}, nil
		}
		return nil, fmt.Errorf("decode faq catalog: %w", err)
	}
	for cat, entries := range c {
		for i := range entries {
			if err := catalogValidate.Struct(&entries[i]); err != nil {
				return nil, fmt.Errorf("faq %s entry %d: %w", cat, i, err)
			}
		}
	}
	return c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open faq catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// GCSLocation names a catalog object in Cloud Storage.
type GCSLocation struct {
	Bucket          string `yaml:"bucket" validate:"required"`
	Object          string `yaml:"object" validate:"required"`
	CredentialsFile string `yaml:"credentials_file"`
}

// LoadGCS reads a catalog object from Cloud Storage. Without a credentials
// file the client uses application default credentials. Extra client
// options are appended, which tests use to point at a fake endpoint.
func LoadGCS(ctx context.Context, loc GCSLocation, opts ...option.ClientOption) (Catalog, error) {
	if loc.CredentialsFile != "" {
		if _, err := os.Stat(loc.CredentialsFile); err != nil {
			return nil, fmt.Errorf("faq credentials %s: %w", loc.CredentialsFile, err)
		}
		opts = append([]option.ClientOption{option.WithCredentialsFile(loc.CredentialsFile)}, opts...)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", loc.Bucket, loc.Object, err)
	}
	defer r.Close()
	return ParseCatalog(r)
}
