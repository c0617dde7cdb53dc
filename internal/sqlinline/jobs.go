package sqlinline

const jobColumns = `id::text, owner_id, kind, provider, model, input, submitted_at, external_job_id,
  status_url, status, coalesce(result_reference, ''), coalesce(last_error, ''), attempts,
  cancel_requested, updated_at`

const QInsertJob = `--sql 8a0b4d72-7a9f-45bd-8897-c49e4a8ab321
insert into generation_jobs (
  id,
  owner_id,
  kind,
  provider,
  model,
  input,
  submitted_at,
  external_job_id,
  status_url,
  status,
  result_reference,
  last_error,
  attempts,
  cancel_requested,
  updated_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::jsonb,
  $7::timestamptz,
  $8::text,
  $9::text,
  $10::text,
  nullif($11::text, ''),
  nullif($12::text, ''),
  $13::int,
  false,
  now()
);
`

const QSelectJobByID = `--sql ddea1944-373d-4ec3-844f-33d889824a72
select ` + jobColumns + `
from generation_jobs
where id = $1::uuid
limit 1;
`

// QUpdateJobStatus is a compare-and-set on the previous status.
const QUpdateJobStatus = `--sql 452f77e1-b6ce-4e48-90ed-4d011ace4b22
update generation_jobs
set status = $3::text,
    result_reference = nullif($4::text, ''),
    last_error = coalesce(nullif($5::text, ''), last_error),
    attempts = greatest(attempts, $6::int),
    updated_at = now()
where id = $1::uuid
  and status = $2::text;
`

const QRequestJobCancel = `--sql adfb60ad-80b8-4097-a1ec-4205d9b937c8
update generation_jobs
set cancel_requested = true
where id = $1::uuid
  and status in ('submitted', 'polling');
`

const QSelectJobCancelRequested = `--sql 5ad5eb6b-f9ef-4639-9807-b877832fe8f2
select cancel_requested
from generation_jobs
where id = $1::uuid
limit 1;
`

const QJobCountsByStatus = `--sql 7369b2e5-43a1-4e4d-9391-cbff5154099e
select status, count(*)::int
from generation_jobs
group by status;
`
