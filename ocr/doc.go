package ocr

// Package ocr defines the contract for plugging third-party text detection
// engines (for example, Tesseract or a remote detector service) into the mask
// synthesis pipeline. The interfaces are intentionally small so engines can be
// backed by local binaries, native libraries, or remote APIs without leaking
// provider-specific concerns into callers.
