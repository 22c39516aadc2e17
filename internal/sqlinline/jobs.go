package sqlinline

const QInsertGenerationJob = `--sql 5d80a8a0-31c1-421f-b47b-c5714b7720d4
insert into generation_jobs(
  id,
  dish_id,
  status,
  progress,
  input_images,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::int,
  $5::text[],
  $6::timestamptz,
  $6::timestamptz
);
`

const QSelectGenerationJob = `--sql 78f60a37-da8f-4821-b871-27a9b12f428a
select
  id::text,
  dish_id,
  status,
  progress,
  input_images,
  coalesce(result_url, ''),
  coalesce(error, ''),
  created_at,
  updated_at,
  completed_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QListGenerationJobs = `--sql f41011f5-9b4e-478a-8cfb-b1dc5e36bbbe
select
  id::text,
  dish_id,
  status,
  progress,
  input_images,
  coalesce(result_url, ''),
  coalesce(error, ''),
  created_at,
  updated_at,
  completed_at
from generation_jobs
order by created_at desc;
`

// Progress only moves forward and only while the job is not terminal.
const QMarkGenerationJobProcessing = `--sql 65f37d0a-9237-4dbb-bc37-2cf43a08ce39
update generation_jobs
set status = 'processing',
    progress = greatest(progress, $2::int),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QUpdateGenerationJobProgress = `--sql efeff7d5-6e7f-482f-95e5-4d21a397c559
update generation_jobs
set progress = greatest(progress, $2::int),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QCompleteGenerationJob = `--sql ffd5ffee-1fba-4689-9666-5c7f4b962310
update generation_jobs
set status = 'completed',
    progress = 100,
    result_url = $2::text,
    error = null,
    completed_at = $3::timestamptz,
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QFailGenerationJob = `--sql e1fb1ffb-526c-489d-adfc-7135052d7611
update generation_jobs
set status = 'failed',
    result_url = null,
    error = $2::text,
    completed_at = $3::timestamptz,
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QFailInterruptedGenerationJobs = `--sql 6ab60cc4-634e-4d75-874e-3e44a0c66334
update generation_jobs
set status = 'failed',
    result_url = null,
    error = $1::text,
    completed_at = now(),
    updated_at = now()
where status in ('pending', 'processing');
`
