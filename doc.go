// Copyright 2026 The Nodevisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nodevisor supervises a Bitcoin full node (bitcoind) and its
// chain indexer (electrs) on a single machine.  The two services are
// fixed, and the supervisor knows how each of them is started, checked
// and stopped.
//
// A Supervisor launches each node as a child process and captures its
// standard output and error into bounded per-stream logs.  Health comes
// from two places: the full node is polled over its JSON-RPC interface
// (see package rpc), and the indexer's output is scanned for phrases it
// prints once it has caught up.
//
// Shutdown is asynchronous and escalates.  The indexer gets SIGTERM and
// the full node an RPC stop; either one that is still alive when its
// grace period ends is killed.  Asking again while a shutdown is in
// progress does not signal anything twice.
//
// The supervisor can be embedded directly, or served over HTTP with the
// rest package, which is what the nodevisord daemon does.
package nodevisor
