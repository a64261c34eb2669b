package wallet

import (
	"archive/zip"
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
)

// buildManifest hashes every archive asset with SHA-1, as the pass format
// requires, and returns the manifest JSON.
func buildManifest(assets map[string][]byte) ([]byte, error) {
	manifest := make(map[string]string, len(assets))
	for name, data := range assets {
		sum := sha1.Sum(data)
		manifest[name] = hex.EncodeToString(sum[:])
	}
	return json.Marshal(manifest)
}

// signManifest signs the manifest bytes with the issuer's private key
// (PKCS#1 v1.5 over SHA-256).
func signManifest(manifest []byte, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(manifest)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign manifest: %w", err)
	}
	return sig, nil
}

// writeArchive packages assets + manifest + signature into one zip archive.
// Assets are written in sorted name order so archives are reproducible.
func writeArchive(assets map[string][]byte, manifest, signature []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)

	write := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}

	for _, name := range names {
		if err := write(name, assets[name]); err != nil {
			return nil, err
		}
	}
	if err := write("manifest.json", manifest); err != nil {
		return nil, err
	}
	if err := write("signature", signature); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
