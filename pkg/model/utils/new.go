// Package modelutils resolves model loaders by name.
package modelutils

import (
	"fmt"

	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/model/digest"
)

const LoaderDigest = "digest"

// NewLoader returns the loader registered under name.
func NewLoader(name string) (model.Loader, error) {
	switch name {
	case LoaderDigest, "":
		return digest.Load, nil
	default:
		return nil, fmt.Errorf("unsupported model loader: %s", name)
	}
}
