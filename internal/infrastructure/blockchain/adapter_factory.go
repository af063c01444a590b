package blockchain

import (
	"fmt"
	"sync"

	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
)

// AdapterFactory caches one adapter per chain/RPC URL.
type AdapterFactory struct {
	rpcURLs  map[entities.ChainType]string
	adapters map[entities.ChainType]ChainAdapter
	mu       sync.RWMutex
}

// NewAdapterFactory creates a factory over the configured RPC endpoints.
func NewAdapterFactory(rpcURLs map[entities.ChainType]string) *AdapterFactory {
	return &AdapterFactory{
		rpcURLs:  rpcURLs,
		adapters: make(map[entities.ChainType]ChainAdapter),
	}
}

// GetAdapter returns the cached adapter for a chain, dialing on first use.
func (f *AdapterFactory) GetAdapter(chain entities.ChainType) (ChainAdapter, error) {
	f.mu.RLock()
	adapter, ok := f.adapters[chain]
	f.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if adapter, ok := f.adapters[chain]; ok {
		return adapter, nil
	}

	rpcURL, ok := f.rpcURLs[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, chain)
	}

	var adapter2 ChainAdapter
	switch chain {
	case entities.ChainSolana:
		adapter2 = NewSolanaAdapter(rpcURL)
	case entities.ChainEthereum:
		evm, err := NewEVMAdapter(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create EVM adapter: %w", err)
		}
		adapter2 = evm
	default:
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, chain)
	}

	f.adapters[chain] = adapter2
	return adapter2, nil
}

// RegisterAdapter injects/overrides the cached adapter for a chain.
// Useful for deterministic unit tests.
func (f *AdapterFactory) RegisterAdapter(chain entities.ChainType, adapter ChainAdapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters[chain] = adapter
}
