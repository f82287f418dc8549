package boot

import (
	"context"
	"fmt"

	wasmboot "github.com/wippyai/wasm-boot"
	"github.com/wippyai/wasm-boot/errors"
)

// ArgumentList is a runtime-native list of the process arguments.
// Only Marshal creates one, and only when every element was stored.
type ArgumentList struct {
	handle wasmboot.Handle
	n      int
}

// Handle returns the runtime reference to the list.
func (l ArgumentList) Handle() wasmboot.Handle {
	return l.handle
}

// Len returns the number of arguments, argument 0 included.
func (l ArgumentList) Len() int {
	return l.n
}

// Marshal copies argv into a runtime-native list, preserving order and bytes.
// Any allocation failure is returned as an allocation error and no list escapes.
func Marshal(ctx context.Context, rt wasmboot.Runtime, argv []string) (ArgumentList, error) {
	list, err := rt.NewList(ctx, len(argv))
	if err != nil {
		return ArgumentList{}, errors.OutOfMemory(fmt.Errorf("list of %d: %w", len(argv), err))
	}

	for i, arg := range argv {
		s, err := rt.NewString(ctx, []byte(arg))
		if err != nil {
			return ArgumentList{}, errors.OutOfMemory(fmt.Errorf("argv[%d]: %w", i, err))
		}
		if err := rt.SetItem(ctx, list, i, s); err != nil {
			return ArgumentList{}, errors.OutOfMemory(fmt.Errorf("store argv[%d]: %w", i, err))
		}
	}

	return ArgumentList{handle: list, n: len(argv)}, nil
}
