// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extract turns files into plain text plus document metadata.
//
// Each format is handled by an Extractor. A Registry picks the first
// extractor that accepts a file, first by extension and then by MIME type,
// and ExtractWithValidation wraps the call with file checks, common
// metadata and a basic clean-up pass.
//
// Supported formats:
//   - Plain text and markdown, with an encoding fallback chain
//   - PDF, through ranked text engines with an OCR fallback for scanned pages
//
// OCR recognition requires building with the "ocr" tag (tesseract and
// leptonica must be installed). Without it the PDF extractor still runs and
// OCR is skipped with a warning.
package extract
