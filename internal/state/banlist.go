package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// banList maps banned IP addresses to free-text reasons. The whole mapping
// is rewritten to its backing file on every mutation; a write failure is
// logged and the in-memory list stays authoritative for the process
// lifetime. Access is synchronized by the owning Store.
type banList struct {
	log  *zap.SugaredLogger
	path string
	bans map[string]string
}

// loadBanList reads the ban list from path. A missing file is created with
// an empty default; an unreadable or corrupt file is logged and replaced by
// an empty in-memory list.
func loadBanList(path string, logger *zap.SugaredLogger) *banList {
	bl := &banList{log: logger, path: path, bans: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		bl.save()
		logger.Infof("created default file: %s", filepath.Base(path))
		return bl
	}
	if err != nil {
		logger.Warnf("could not load %s: %v. Starting with default.", path, err)
		return bl
	}
	if err := json.Unmarshal(data, &bl.bans); err != nil {
		logger.Warnf("could not load %s: %v. Starting with default.", path, err)
		bl.bans = make(map[string]string)
	}
	return bl
}

func (b *banList) save() {
	data, err := json.MarshalIndent(b.bans, "", "    ")
	if err != nil {
		b.log.Errorf("could not serialize ban list: %v", err)
		return
	}
	if err := os.WriteFile(b.path, data, 0644); err != nil {
		b.log.Errorf("could not save to %s: %v", b.path, err)
	}
}

func (b *banList) add(ipAddr, reason string) {
	b.bans[ipAddr] = reason
	b.save()
}

func (b *banList) remove(ipAddr string) bool {
	if _, ok := b.bans[ipAddr]; !ok {
		return false
	}
	delete(b.bans, ipAddr)
	b.save()
	return true
}

func (b *banList) reason(ipAddr string) (string, bool) {
	reason, ok := b.bans[ipAddr]
	return reason, ok
}
