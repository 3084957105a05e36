package vault

import (
	"path"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/storage"
)

// Freshness markers: every writer touches a .touch object after
// changing a store directory, and readers compare its modification
// time against the one recorded locally. A stale or missing marker
// means the directory must be re-read.

func (v *Vault) touchName(dir string) string {
	return path.Join(dir, ".touch")
}

// Touch marks dir as changed and records the new marker time locally,
// so this session does not immediately re-read its own write.
func (v *Vault) Touch(dir string) error {
	name := v.touchName(dir)
	if err := storage.WriteFile(v.ctx(), v.Store, name, []byte{}); err != nil {
		return err
	}
	st, err := v.Store.Stat(v.ctx(), name)
	if err != nil {
		return err
	}
	return config.SetValue(v.DB, config.NodeGuard, path.Join(v.ID, dir), "", st.ModTime.UnixMilli(), nil)
}

// IsUpdated reports whether dir changed on the store since this session
// last observed it. Unknown state reads as updated.
func (v *Vault) IsUpdated(dir string) bool {
	_, last, _, ok := config.GetValue(v.DB, config.NodeGuard, path.Join(v.ID, dir))
	if !ok {
		return true
	}
	st, err := v.Store.Stat(v.ctx(), v.touchName(dir))
	if err != nil {
		return true
	}
	return st.ModTime.UnixMilli() > last
}

// Observe records the current marker time for dir without writing,
// used after a reader finished consuming the directory.
func (v *Vault) Observe(dir string) {
	st, err := v.Store.Stat(v.ctx(), v.touchName(dir))
	if err != nil {
		return
	}
	config.SetValue(v.DB, config.NodeGuard, path.Join(v.ID, dir), "", st.ModTime.UnixMilli(), nil)
}
