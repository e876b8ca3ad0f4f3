// Package mongo implements backend.Facade against a MongoDB collection of
// run documents, for deployments that want a shared, queryable run store
// instead of the default filesystem backend (spec §6 PYPADS_MONGO_URI).
// Adapted from the teacher's features/run/mongo session store: one
// collection, upsert-by-id writes, index on the id field.
package mongo
