// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ethstore

// DefaultAddress is the deployed grid contract.
const DefaultAddress = "0xAE0983F8f28C164288d94741c93486aAC954273c"

// Contract method and event names.
const (
	methodGetGrid       = "getGrid"
	methodWidth         = "width"
	methodHeight        = "height"
	methodActivateCell  = "activateCell"
	methodActivateCells = "activateCells"
	methodNextIteration = "nextIteration"

	eventCellActivated          = "CellActivated"
	eventGridInitialized        = "GridInitialized"
	eventNextIterationCompleted = "NextIterationCompleted"
)

// gridABI is the interface of the deployed grid contract.
const gridABI = `[
  {"inputs":[{"internalType":"uint256","name":"_width","type":"uint256"},{"internalType":"uint256","name":"_height","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},
  {"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"xCoord","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"yCoord","type":"uint256"}],"name":"CellActivated","type":"event"},
  {"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"width","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"height","type":"uint256"}],"name":"GridInitialized","type":"event"},
  {"anonymous":false,"inputs":[{"indexed":false,"internalType":"bool[][]","name":"newGrid","type":"bool[][]"}],"name":"NextIterationCompleted","type":"event"},
  {"inputs":[{"internalType":"uint256","name":"xCoord","type":"uint256"},{"internalType":"uint256","name":"yCoord","type":"uint256"}],"name":"activateCell","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"uint256[]","name":"xCoords","type":"uint256[]"},{"internalType":"uint256[]","name":"yCoords","type":"uint256[]"}],"name":"activateCells","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"getGrid","outputs":[{"internalType":"bool[][]","name":"","type":"bool[][]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],"name":"grid","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"height","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"nextIteration","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"width","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`
