package commit

import (
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// relocateEtc implements the four-case /etc<->/usr/etc table: exactly
// one of "no /etc at all" or "/usr/etc present, /etc absent" must hold
// in the committed tree.
func relocateEtc(tx *store.Transaction, root *MutableTree) error {
	etc := root.Subtree("etc")
	usr := root.Subtree("usr")

	var usrEtcPresent bool
	if usr != nil {
		usrEtcPresent = usr.HasEntry("etc")
	}

	switch {
	case etc == nil && !usrEtcPresent:
		return nil // no /etc at all: accepted as-is
	case etc == nil && usrEtcPresent:
		return nil // native layout: accepted as-is
	case etc != nil && usrEtcPresent:
		return types.Newf(types.ErrInvariantViolation, "Found both /etc and /usr/etc")
	}

	// present / absent: persist /etc to compute its checksums, graft the
	// same checksum under usr/etc, then drop /etc from the root tree.
	etcSum, err := etc.Write(tx)
	if err != nil {
		return err
	}
	if usr == nil {
		usr = NewMutableTree(root.metaChecksum)
		root.SetSubtree("usr", usr)
	}
	usr.SetSubtreeChecksum("etc", etcSum)
	root.RemoveEntry("etc")
	return nil
}
