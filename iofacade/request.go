// Copyright (C) 2021-2025 Chronicle Labs, Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package iofacade

import (
	"io"

	"github.com/chronicleprotocol/go-vfs/errutil"
	"github.com/chronicleprotocol/go-vfs/ioproto"
)

// request is the loop task of a queued message.
type request struct {
	io    *IO
	msg   ioproto.Message
	mount *mount
}

// Dispatch implements the runloop.Task interface.
func (r *request) Dispatch() {
	if err := ioproto.Dispatch(r.mount.fs, r.msg); err != nil {
		// Unsupported kinds are rejected before queuing, so this is a
		// handler panic and the message is already failed.
		r.io.log.Warn("Filesystem handler failed",
			"id", r.msg.ID(),
			"filesystem", r.mount.fs.Name(),
			"err", err)
		_ = r.msg.Complete(ioproto.StatusFailed, nil, err)
	}
}

// Done implements the runloop.Task interface.
func (r *request) Done() bool {
	return r.msg.Handled()
}

// Complete implements the runloop.Task interface.
func (r *request) Complete() {
	r.io.release(r.mount)
	r.io.log.Debug("Request handled",
		"id", r.msg.ID(),
		"url", r.msg.URL().String(),
		"status", r.msg.Status(),
		"err", r.msg.Err())
	r.msg.Notify()
}

// closeMounts closes the instances implementing io.Closer.
func closeMounts(ms ...*mount) (err error) {
	for _, m := range ms {
		c, ok := m.fs.(io.Closer)
		if !ok {
			continue
		}
		err = errutil.Append(err, c.Close())
	}
	return err
}
