// Package git provides access to the object database of an enlistment's
// .git directory.
//
// Reads go through go-git's filesystem storage so they work on any billy
// filesystem, including memfs in tests. Heavier maintenance work (packing
// loose objects, multi-pack-index and commit-graph upkeep) is delegated to
// the git CLI through the MaintenanceOperations interface, which can be
// replaced with a fake in tests.
//
// # Core Types
//
// Objects wraps a single .git directory. It knows the origin URL and the
// optional cache server URL, writes downloaded loose objects atomically and
// answers existence and history queries for the maintenance steps.
//
// # Object Ids
//
// Object ids are 40 hexadecimal characters. They are compared case
// insensitively and always stored lowercase; see NormalizeID and ValidateID.
// The all-zero id is never a real object.
//
// # Writing Loose Objects
//
// WriteLooseObject streams compressed object bytes into a temporary file
// under objects/, verifies that the content hashes to the expected id and
// only then renames it to objects/xx/yyyy...:
//
//	buf := make([]byte, 64*1024)
//	if err := objs.WriteLooseObject(body, id, buf); err != nil {
//	    return err
//	}
//
// A body whose hash does not match returns an error with code
// CORRUPT_OBJECT and nothing is left behind.
//
// # Error Handling
//
// All errors are platform errors from the errors package. go-git sentinel
// errors are classified (a missing object is NOT_FOUND) and git CLI failures
// become EXECUTION_FAILED with the command's stderr attached.
package git
