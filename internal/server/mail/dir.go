package mail

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/dmitrijs2005/sitekeeper/internal/filex"
)

// DirOutbox writes each message as a JSON file under root, using the same
// outbox/<yyyy>/<mm>/<dd>/<uuid>.json layout as S3Outbox. Files appear
// atomically, so a relay may poll the tree.
type DirOutbox struct {
	root string
}

func NewDirOutbox(root string) (*DirOutbox, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &DirOutbox{root: abs}, nil
}

func (o *DirOutbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	path := filepath.Join(o.root, filepath.FromSlash(outboxKey(msg)))
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, body, 0o640)
}
