// Command trackforge transforms raw playlist snapshots into a partitioned
// analytics warehouse: run processes one snapshot end to end, status reports
// recent transform runs, and config manages the configuration file.
package main
