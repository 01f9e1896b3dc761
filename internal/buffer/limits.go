// Copyright 2015 Google Inc. All Rights Reserved.
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

package buffer

// MaxReadSize is the largest payload we will ever ask the kernel to place in
// a single incoming message (i.e. the largest WriteIn.Size we advertise
// support for via InitOut.MaxWrite, plus a bit of slack for headers).
const MaxReadSize = 1<<20 + 4096

// MaxWriteSize is the largest payload we will ever place in a single
// outgoing message.
const MaxWriteSize = 1 << 20
