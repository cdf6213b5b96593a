package memstore_test

import (
	"testing"

	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/store/memstore"
	"github.com/cognicore/graphmind/pkg/graphmind/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memstore.New()
	})
}
