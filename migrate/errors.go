/*
 * gwpump - Copyright (C) 2026 gwpump contributors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package migrate

import "fmt"

// AuthenticationError means a driver could not establish a session. It is
// fatal for the enclosing job; whether retrying makes sense is left to the
// queue runtime's policy.
type AuthenticationError struct {
	Account string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// StorageError means a remote write (folder create, item create/append)
// failed with a non-success response.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TransportError is a low-level network or protocol failure, as opposed to
// an application-level rejection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FolderNotFoundError means a folder expected on the remote side does
// not exist.
type FolderNotFoundError struct {
	Fullname string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder not found: %s", e.Fullname)
}

// UnsupportedTypeError means a folder/item type or URI scheme has no
// mapping for the target protocol. This is a configuration-level failure.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type: %s", e.Type)
}
