// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stubs

// builtinStubs ships exception signatures for standard-library and common
// third-party calls whose bodies the extractor never sees. Each value is a
// YAML document of "module.function: [ExceptionType, ...]" (a bare function
// name for Python builtins).
var builtinStubs = map[string]string{
	"builtins.yaml": `
int: [ValueError, TypeError]
open: [FileNotFoundError, PermissionError, IsADirectoryError, OSError]
`,
	"os.yaml": `
os.remove: [FileNotFoundError, PermissionError, IsADirectoryError, OSError]
os.mkdir: [FileExistsError, FileNotFoundError, PermissionError, OSError]
os.makedirs: [FileExistsError, FileNotFoundError, PermissionError, OSError]
os.rmdir: [FileNotFoundError, OSError]
os.rename: [FileNotFoundError, PermissionError, OSError]
os.environ.__getitem__: [KeyError]
os.getenv: []
`,
	"json.yaml": `
json.loads: [ValueError]
json.load: [ValueError]
json.dumps: [TypeError, ValueError]
`,
	"socket.yaml": `
socket.socket.connect: [ConnectionRefusedError, TimeoutError, OSError]
socket.socket.send: [BrokenPipeError, OSError]
socket.socket.recv: [ConnectionResetError, OSError]
socket.create_connection: [ConnectionRefusedError, TimeoutError, OSError]
`,
	"requests.yaml": `
requests.get: [ConnectionError, Timeout, HTTPError, RequestException]
requests.post: [ConnectionError, Timeout, HTTPError, RequestException]
requests.put: [ConnectionError, Timeout, HTTPError, RequestException]
requests.delete: [ConnectionError, Timeout, HTTPError, RequestException]
requests.Session.request: [ConnectionError, Timeout, HTTPError, RequestException]
`,
	"sqlalchemy.yaml": `
sqlalchemy.orm.Session.commit: [IntegrityError, OperationalError, SQLAlchemyError]
sqlalchemy.orm.Session.execute: [OperationalError, ProgrammingError, SQLAlchemyError]
sqlalchemy.orm.Query.one: [NoResultFound, MultipleResultsFound]
sqlalchemy.orm.Query.one_or_none: [MultipleResultsFound]
`,
	"yaml.yaml": `
yaml.safe_load: [YAMLError]
yaml.load: [YAMLError]
`,
}
