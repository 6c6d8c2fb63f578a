// Package storage handles placement of downloaded photos on disk.
//
// The Manager type:
//   - creates the output directory, parents included
//   - resolves name collisions by appending _1, _2... before the extension
//   - writes through a temporary file and an atomic rename
//
// Name reservation is serialised inside one process. Two processes writing
// the same directory may still race between the existence check and the
// rename. Identical content saved under different names is not detected.
//
// Usage:
//
//	manager, err := storage.NewManagerWithFs(afero.NewOsFs(), "downloads")
//	if err != nil {
//	    return err
//	}
//	path, err := manager.Save("photo.jpg", body)
package storage
