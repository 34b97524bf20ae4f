// Package typemetadata resolves an SD-JWT VC type-metadata chain: the
// ordered sequence of JSON documents from the received `vct` up to the
// root, each named by its own `vct` and linked to the next by
// `extends`/`extends_integrity`.
//
// Grounded on the teacher's pkg/sdjwtvc/types.go VCTM type (reused
// here as credential.VCTM, C2) and generalized with a chain walk that
// has no teacher equivalent — dc4eu-vc treats type metadata as a flat,
// single document. The walk and its error taxonomy are built fresh in
// the teacher's idiom (sentinel + typed errors, §4.6).
package typemetadata

import (
	"errors"
	"fmt"

	"github.com/MinBZK/nl-wallet-sub004/pkg/credential"
	"github.com/MinBZK/nl-wallet-sub004/pkg/credential/integrity"
)

// Errors returned by Resolve, per spec §4.6.
var (
	ErrVctNotFound                = fmt.Errorf("typemetadata: vct not found in supplied document set")
	ErrIntegrityAlgorithmInsecure = fmt.Errorf("typemetadata: extends_integrity uses an insecure algorithm")
	ErrResourceIntegrity          = fmt.Errorf("typemetadata: extends_integrity does not match the extended document")
)

// CircularChainError reports that vct, once already visited, was
// reached again while walking extends pointers.
type CircularChainError struct {
	VCT string
}

func (e *CircularChainError) Error() string {
	return fmt.Sprintf("typemetadata: circular extends chain at vct %q", e.VCT)
}

// ExcessMetadataError reports that the supplied document set contained
// documents never reached while walking the chain from the received
// vct.
type ExcessMetadataError struct {
	VCTs []string
}

func (e *ExcessMetadataError) Error() string {
	return fmt.Sprintf("typemetadata: excess metadata documents supplied: %v", e.VCTs)
}

// Document pairs a deserialised VCTM with the raw bytes it was parsed
// from, since extends_integrity is verified against the raw document,
// not a re-serialization of it.
type Document struct {
	VCTM credential.VCTM
	Raw  []byte
}

// Resolve walks the extends chain starting at receivedVCT through the
// supplied documents (an unordered bag; order of the returned chain is
// determined by the walk, not by input order), verifying the
// resource-integrity of every non-root document against the integrity
// token recorded by the document that extends it. The first document's
// own integrity is not checked here — per §4.6 it is verified once
// against the concrete attestation's carried integrity, at a different
// layer.
//
// Returns the chain ordered from receivedVCT (index 0) to the root.
func Resolve(docs []Document, receivedVCT string) ([]credential.VCTM, error) {
	byVCT := make(map[string]Document, len(docs))
	for _, d := range docs {
		byVCT[d.VCTM.VCT] = d
	}

	chain := make([]credential.VCTM, 0, len(docs))
	visited := make(map[string]bool, len(docs))

	current, ok := byVCT[receivedVCT]
	if !ok {
		return nil, ErrVctNotFound
	}

	for {
		if visited[current.VCTM.VCT] {
			return nil, &CircularChainError{VCT: current.VCTM.VCT}
		}
		visited[current.VCTM.VCT] = true
		chain = append(chain, current.VCTM)

		if current.VCTM.Extends == "" {
			break
		}

		next, ok := byVCT[current.VCTM.Extends]
		if !ok {
			return nil, ErrVctNotFound
		}

		if err := verifyExtendsIntegrity(current.VCTM.ExtendsIntegrity, next.Raw); err != nil {
			return nil, err
		}

		current = next
	}

	if unreached := unreachedVCTs(docs, visited); len(unreached) > 0 {
		return nil, &ExcessMetadataError{VCTs: unreached}
	}

	return chain, nil
}

func verifyExtendsIntegrity(token string, nextRaw []byte) error {
	parsed, err := integrity.Parse(token)
	if err != nil {
		if errors.Is(err, integrity.ErrAlgorithmInsecure) {
			return ErrIntegrityAlgorithmInsecure
		}
		return fmt.Errorf("%w: %v", ErrResourceIntegrity, err)
	}
	if err := parsed.Verify(nextRaw); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceIntegrity, err)
	}
	return nil
}

func unreachedVCTs(docs []Document, visited map[string]bool) []string {
	var unreached []string
	for _, d := range docs {
		if !visited[d.VCTM.VCT] {
			unreached = append(unreached, d.VCTM.VCT)
		}
	}
	return unreached
}
