// Package sequence observes task-to-task transitions within process
// instances and prefetches the definitions the next tasks are likely to
// need. The frequency table is a bounded heuristic, never authoritative:
// predictions only warm caches, they never influence routing.
package sequence
