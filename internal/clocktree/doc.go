// Package clocktree saves, gates and restores a SoC clock generator around a
// sleep transaction.
//
// Every chip performs the same dance with different register offsets:
//
//	PreEnter:  allocate snapshot, save dividers and source selects,
//	           force safe dividers, stop every domain the wake set does not
//	           need, power down PLLs nothing running depends on.
//	PostEnter: power PLLs up, wait for lock, restore the snapshot in reverse
//	           capture order, free the snapshot.
//
// The per-chip knowledge lives in a Layout, normally compiled from a CUE
// platform definition. Snapshots come from a fixed-capacity Arena sized for
// one transaction, so a second PreEnter before the matching PostEnter fails
// with *AllocError and touches no register.
package clocktree
