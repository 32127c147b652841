package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lightnode/internal/config"
	"lightnode/internal/data"
	"lightnode/internal/identity"
	"lightnode/internal/p2p"
	"lightnode/internal/types"
)

var errNotFound = errors.New("not found")

// inspectEnv is what an inspect command can reach.
type inspectEnv struct {
	cfg *config.Config
	id  *identity.Identity
	db  *data.DB
	out *json.Encoder
}

type command struct {
	Usage string
	Help  string
	Args  int
	// NoDB commands run without opening the database.
	NoDB bool
	Run  func(env *inspectEnv, args []string) error
}

var commands = map[string]command{
	"id": {
		Usage: "id",
		Help:  "print the node and database identity",
		NoDB:  true,
		Run:   runID,
	},
	"header": {
		Usage: "header <block>",
		Help:  "print a block header and its hash",
		Args:  1,
		Run:   runHeader,
	},
	"cells": {
		Usage: "cells <block>",
		Help:  "print the verified cell count of a block",
		Args:  1,
		Run:   runCells,
	},
	"appdata": {
		Usage: "appdata <app_id> <block>",
		Help:  "print the data an application submitted in a block",
		Args:  2,
		Run:   runAppData,
	},
	"checkpoint": {
		Usage: "checkpoint",
		Help:  "print the finality sync checkpoint",
		Run:   runCheckpoint,
	},
	"records": {
		Usage: "records",
		Help:  "print every persisted DHT record",
		Run:   runRecords,
	},
}

func printCommands(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-26s %s\n", c.Usage, c.Help)
	}
}

// inspect runs one read-only command and prints its result as JSON.
func inspect(cfg *config.Config, id *identity.Identity, args []string, stdout io.Writer) error {
	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(rest) != cmd.Args {
		return fmt.Errorf("usage: lightnode %s", cmd.Usage)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	env := &inspectEnv{cfg: cfg, id: id, out: enc}

	if !cmd.NoDB {
		db, err := data.Open(cfg.DBPath(), data.Options{
			ReadOnly: true,
			Timeout:  cfg.Storage.OpenTimeout.Duration,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		env.db = db
	}
	return cmd.Run(env, rest)
}

func parseBlock(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q", s)
	}
	return uint32(n), nil
}

func runID(env *inspectEnv, _ []string) error {
	pub, err := identity.AuthorizedKey(env.id.PublicKey)
	if err != nil {
		return err
	}
	out := struct {
		Name       string     `json:"name"`
		PeerID     p2p.PeerID `json:"peer_id"`
		PublicKey  string     `json:"public_key"`
		DatabaseID *uuid.UUID `json:"database_id,omitempty"`
	}{
		Name:      env.cfg.Node.Name,
		PeerID:    env.id.PeerID,
		PublicKey: strings.TrimSpace(string(pub)),
	}
	// The database is optional here: a node that never ran has none.
	if db, err := data.Open(env.cfg.DBPath(), data.Options{
		ReadOnly: true,
		Timeout:  env.cfg.Storage.OpenTimeout.Duration,
	}); err == nil {
		dbID := db.ID()
		if dbID != uuid.Nil {
			out.DatabaseID = &dbID
		}
		_ = db.Close()
	}
	return env.out.Encode(out)
}

func runHeader(env *inspectEnv, args []string) error {
	block, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	key := data.BlockHeaderKey{Block: block}
	h, ok, err := data.Get[types.Header](env.db, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, errNotFound)
	}
	return env.out.Encode(struct {
		Hash   types.Hash   `json:"hash"`
		Header types.Header `json:"header"`
	}{h.Hash(), h})
}

func runCells(env *inspectEnv, args []string) error {
	block, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	key := data.VerifiedCellCountKey{Block: block}
	c, ok, err := data.Get[types.CellCount](env.db, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, errNotFound)
	}
	return env.out.Encode(struct {
		Block         uint32          `json:"block"`
		VerifiedCells types.CellCount `json:"verified_cells"`
	}{block, c})
}

func runAppData(env *inspectEnv, args []string) error {
	app, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid app id %q", args[0])
	}
	block, err := parseBlock(args[1])
	if err != nil {
		return err
	}
	key := data.AppDataKey{AppID: uint32(app), Block: block}
	d, ok, err := data.Get[types.AppData](env.db, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, errNotFound)
	}
	return env.out.Encode(d)
}

func runCheckpoint(env *inspectEnv, _ []string) error {
	key := data.FinalitySyncCheckpointKey{}
	cp, ok, err := data.Get[types.FinalityCheckpoint](env.db, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, errNotFound)
	}
	return env.out.Encode(cp)
}

type recordView struct {
	Key       string     `json:"key"` // hex
	Value     []byte     `json:"value"`
	Publisher p2p.PeerID `json:"publisher,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
}

func runRecords(env *inspectEnv, _ []string) error {
	now := time.Now()
	views := []recordView{}
	for rec, err := range env.db.AllRecords() {
		if err != nil {
			return err
		}
		v := recordView{
			Key:       fmt.Sprintf("%x", rec.Key),
			Value:     rec.Value,
			Publisher: rec.Publisher,
			Expired:   rec.Expired(now),
		}
		if !rec.Expires.IsZero() {
			exp := rec.Expires.UTC()
			v.Expires = &exp
		}
		views = append(views, v)
	}
	return env.out.Encode(views)
}
