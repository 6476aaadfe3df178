// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

// NotificationKind names an event emitted by the authoritative store.
type NotificationKind string

const (
	NotifyCellActivated          NotificationKind = "CellActivated"
	NotifyGridInitialized        NotificationKind = "GridInitialized"
	NotifyNextIterationCompleted NotificationKind = "NextIterationCompleted"
)

// Notification is one store event as decoded by a backend.
//
// X and Y are set for CellActivated, Width and Height for GridInitialized,
// and Grid for NextIterationCompleted.
type Notification struct {
	Kind   NotificationKind `json:"kind"`
	X      uint64           `json:"x,omitempty"`
	Y      uint64           `json:"y,omitempty"`
	Width  uint64           `json:"width,omitempty"`
	Height uint64           `json:"height,omitempty"`
	Grid   Grid             `json:"grid,omitempty"`
	Block  uint64           `json:"block,omitempty"`
}
