// Package repository defines the backend-independent record repository
// contract, its error taxonomy, the shared field mapping helpers and the
// metrics/tracing decorator used by the relational and document implementations.
package repository
