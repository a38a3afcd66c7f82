// Copyright 2023 The pubmint Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// NewWatchedMinter is NewMinter plus a watcher that re-reads the key file
// whenever it changes, so keys can be rotated without a restart. Credentials
// minted under the old key stop verifying once the swap happens.
func NewWatchedMinter(keyPath, audience, prefix string, ttl time.Duration) (*Minter, error) {
	m, err := NewMinter(keyPath, audience, prefix, ttl)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(keyPath); err != nil {
		return nil, err
	}

	go m.ioWatch(keyPath, watcher)

	return m, nil
}

func (m *Minter) ioWatch(keyPath string, watcher *fsnotify.Watcher) {
	for event := range watcher.Events {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			// Atomic replaces (kubernetes secret mounts) swap the inode
			// out from under the watch. Re-add the path to follow the
			// new file.
			_ = watcher.Add(keyPath)
		} else if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}

		key, err := loadKey(keyPath)
		if err != nil {
			// Don't sweat it if this errors out. The file may be mid
			// rotation; the previous key stays active until a whole
			// key is readable again.
			continue
		}

		m.setKey(key)
	}
}
