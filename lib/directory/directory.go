// Package directory keeps a small address book of hops: a display name, the
// hop's pubkey, a suggested fee and optionally the relays it reads from.
//
// The book is a YAML file, by default $HOME/.nostr-onion/hops.yaml:
//
//	hops:
//	  - name: alice
//	    pubkey: npub1...
//	    fee: 5
//	    relays: [wss://relay.example]
package directory

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/config"
	"github.com/go-i2p/nostr-onion/lib/mailbox"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

var log = logger.GetGoI2PLogger()

var (
	ErrUnknownHop    = errors.New("hop not found in directory")
	ErrDuplicateName = errors.New("hop name already in directory")
)

// Entry is one known hop.
type Entry struct {
	Name   string   `yaml:"name"`
	Pubkey string   `yaml:"pubkey"`
	Fee    uint64   `yaml:"fee,omitempty"`
	Relays []string `yaml:"relays,omitempty"`
}

type file struct {
	Hops []Entry `yaml:"hops"`
}

// Directory indexes entries by name and by hex pubkey.
type Directory struct {
	entries  []Entry
	byName   map[string]int
	byPubkey map[string]int
}

// New builds a directory from entries. Pubkeys may be hex or npub.
func New(entries []Entry) (*Directory, error) {
	d := &Directory{byName: map[string]int{}, byPubkey: map[string]int{}}
	for _, e := range entries {
		if err := d.Add(e); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Load reads a directory file. A missing file yields an empty directory.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Debug("no hop directory, starting empty")
		return New(nil)
	}
	if err != nil {
		return nil, oops.In("directory").With("path", path).Wrapf(err, "reading hop directory")
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.In("directory").With("path", path).Wrapf(err, "parsing hop directory")
	}
	d, err := New(f.Hops)
	if err != nil {
		return nil, oops.In("directory").With("path", path).Wrap(err)
	}
	log.WithFields(logger.Fields{"at": "directory.Load", "path": path, "hops": len(d.entries)}).Debug("loaded hop directory")
	return d, nil
}

// Save writes the directory with owner-only permissions.
func (d *Directory) Save(path string) error {
	data, err := yaml.Marshal(&file{Hops: d.entries})
	if err != nil {
		return oops.Wrapf(err, "encoding hop directory")
	}
	if err := config.CreateSecureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	return config.WriteSecureFile(path, data)
}

// Add inserts e after normalising its pubkey and relays.
func (d *Directory) Add(e Entry) error {
	pk, err := nostr.NormalizePublicKey(e.Pubkey)
	if err != nil {
		return oops.With("name", e.Name).Wrapf(err, "hop %q", e.Name)
	}
	e.Pubkey = pk
	e.Name = strings.TrimSpace(e.Name)
	e.Relays = relay.NormalizeURLs(e.Relays)
	if e.Name != "" {
		if _, ok := d.byName[strings.ToLower(e.Name)]; ok {
			return oops.Wrapf(ErrDuplicateName, "%s", e.Name)
		}
	}
	if i, ok := d.byPubkey[pk]; ok {
		// same key listed twice, keep the first name
		log.WithFields(logger.Fields{"pubkey": pk, "name": d.entries[i].Name}).Warn("duplicate hop pubkey ignored")
		return nil
	}
	d.entries = append(d.entries, e)
	idx := len(d.entries) - 1
	d.byPubkey[pk] = idx
	if e.Name != "" {
		d.byName[strings.ToLower(e.Name)] = idx
	}
	return nil
}

// Entries returns the entries sorted by name.
func (d *Directory) Entries() []Entry {
	out := append([]Entry(nil), d.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds an entry by name, hex pubkey or npub.
func (d *Directory) Lookup(ref string) (Entry, error) {
	ref = strings.TrimSpace(ref)
	if i, ok := d.byName[strings.ToLower(ref)]; ok {
		return d.entries[i], nil
	}
	pk, err := nostr.NormalizePublicKey(ref)
	if err != nil {
		return Entry{}, oops.Wrapf(ErrUnknownHop, "%s", ref)
	}
	if i, ok := d.byPubkey[pk]; ok {
		return d.entries[i], nil
	}
	// a valid key outside the directory is still a usable hop
	return Entry{Pubkey: pk}, nil
}

// Name returns the display name for pubkey, falling back to a short npub.
func (d *Directory) Name(pubkey string) string {
	if i, ok := d.byPubkey[pubkey]; ok && d.entries[i].Name != "" {
		return d.entries[i].Name
	}
	npub, err := nostr.EncodeNpub(pubkey)
	if err != nil || len(npub) < 16 {
		return pubkey
	}
	return npub[:16]
}

// Mailboxes exposes entries with relays as a resolver. Listed relays act as
// inboxes.
func (d *Directory) Mailboxes() mailbox.Static {
	m := mailbox.Static{}
	for _, e := range d.entries {
		if len(e.Relays) > 0 {
			m[e.Pubkey] = mailbox.Mailboxes{Inboxes: e.Relays}
		}
	}
	return m
}
