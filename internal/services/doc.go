// Package services holds cross-cutting helpers shared by the pipeline
// stages: the error taxonomy used to classify failures, and context
// annotations that flow job identity into structured logs.
package services
