// Package inference coordinates the two enrichment collaborators that run on
// every admitted frame: the object detector and the description generator.
//
// Detection runs under the configured timeout and its output is post-filtered
// by confidence and by allow/deny label lists; the filter can be swapped at
// runtime when the configuration file changes. Description runs under a hard
// timeout and never fails: when the describer errors, times out or is
// disabled the coordinator substitutes "Detected: <labels>".
//
// HTTPDetector and LLMDescriber are the shipped collaborator adapters.
package inference
