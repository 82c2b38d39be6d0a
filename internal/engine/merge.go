package engine

import (
	"context"
	"fmt"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/store"
)

// mergeRow applies one remote row to the local store with row-level
// last-write-wins. The remote row is written only when no local row exists
// or the remote timestamp is strictly newer; ties keep the local row. Both
// the pull engine and the realtime subscription manager merge through this
// path, so out-of-order feed delivery cannot regress local state.
func mergeRow(ctx context.Context, st *store.Store, kind model.Kind, remoteRow model.Row) (applied bool, err error) {
	id := model.RowID(remoteRow)
	if id == "" {
		return false, fmt.Errorf("remote %s row has no id", kind)
	}

	localTS, found, err := st.RowTimestamp(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if found {
		remoteTS := model.RowTime(remoteRow, kind.TimestampColumn())
		if !remoteTS.After(localTS) {
			return false, nil
		}
	}

	if err := st.UpsertRow(ctx, kind, remoteRow); err != nil {
		return false, err
	}
	return true, nil
}
